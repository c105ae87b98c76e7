// Package ledger keeps balances, inventories and the acquisition log on top
// of a storage.Store.
//
// Rows of a ledger sheet are [name, acquiredAt, quantity]; the currency is
// the row named CurrencyItem. There are no transactions: a purchase debits,
// then adds the item, and credits the price back if the add fails. A failed
// credit leaves the user debited without the item; that case is logged.
//
// A Ledger is not safe for concurrent mutation of the same key. The consumer
// processes one mention at a time.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/suspectuso/galleon-bot/internal/storage"
)

// CurrencyItem is the reserved inventory name holding the balance.
const CurrencyItem = "currency-unit"

// Mode is how UpdateBalance applies an amount.
type Mode int

const (
	Set Mode = iota
	Add
	Subtract
)

func (m Mode) String() string {
	switch m {
	case Set:
		return "set"
	case Add:
		return "add"
	case Subtract:
		return "subtract"
	default:
		return "unknown"
	}
}

// StoreError reports a failed read or write against the store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err came from the store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// Item is one inventory row.
type Item struct {
	Name       string
	AcquiredAt time.Time
	Quantity   int64
}

// Ledger performs balance and inventory operations.
type Ledger struct {
	store storage.Store
	now   func() time.Time
	log   *slog.Logger
}

// New creates a Ledger.
func New(store storage.Store, log *slog.Logger) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		log:   log,
	}
}

// Balance returns the currency quantity, 0 if the row does not exist yet.
func (l *Ledger) Balance(ctx context.Context, key string) (int64, error) {
	item, err := l.getItem(ctx, key, CurrencyItem)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return item.Quantity, nil
}

// UpdateBalance applies amount and returns the new balance. The balance never
// goes below zero. On error the stored balance is unchanged.
func (l *Ledger) UpdateBalance(ctx context.Context, key string, amount int64, mode Mode) (int64, error) {
	item, err := l.getItem(ctx, key, CurrencyItem)
	exists := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}

	var next int64
	switch mode {
	case Set:
		next = amount
	case Add:
		next = item.Quantity + amount
	case Subtract:
		next = item.Quantity - amount
	default:
		return 0, fmt.Errorf("update balance: unknown mode %d", mode)
	}
	if next < 0 {
		next = 0
	}

	row := itemRow(Item{Name: CurrencyItem, AcquiredAt: l.now(), Quantity: next})
	sheet := storage.LedgerSheet(key)
	if exists {
		err = l.store.UpdateRow(ctx, sheet, CurrencyItem, row)
	} else {
		err = l.store.AppendRow(ctx, sheet, row)
	}
	if err != nil {
		return 0, &StoreError{Op: "update balance", Err: err}
	}

	return next, nil
}

// AddItem accumulates quantity on an existing row (refreshing its timestamp)
// or appends a new row.
func (l *Ledger) AddItem(ctx context.Context, key, name string, quantity int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("add item: empty name")
	}
	if quantity <= 0 {
		quantity = 1
	}

	item, err := l.getItem(ctx, key, name)
	exists := err == nil
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	row := itemRow(Item{Name: name, AcquiredAt: l.now(), Quantity: item.Quantity + quantity})
	sheet := storage.LedgerSheet(key)
	if exists {
		err = l.store.UpdateRow(ctx, sheet, name, row)
	} else {
		err = l.store.AppendRow(ctx, sheet, row)
	}
	if err != nil {
		return &StoreError{Op: "add item", Err: err}
	}
	return nil
}

// Inventory returns the ledger rows in acquisition order. Zero-quantity
// rows are omitted; the currency row only when includeCurrency is set.
func (l *Ledger) Inventory(ctx context.Context, key string, includeCurrency bool) ([]Item, error) {
	rows, err := l.store.ListRows(ctx, storage.LedgerSheet(key))
	if err != nil {
		return nil, &StoreError{Op: "list inventory", Err: err}
	}

	var items []Item
	for _, r := range rows {
		it := l.parseItem(r)
		if it.Name == "" || it.Quantity <= 0 {
			continue
		}
		if it.Name == CurrencyItem && !includeCurrency {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// PurchaseResult is the outcome of Purchase.
type PurchaseResult struct {
	OK      bool
	Item    string
	Price   int64
	Balance int64 // balance after the purchase, or the unchanged balance on refusal
}

// Purchase debits price and grants itemName. Insufficient funds is not an
// error: OK is false and nothing is written.
func (l *Ledger) Purchase(ctx context.Context, key, itemName string, price int64) (PurchaseResult, error) {
	res := PurchaseResult{Item: itemName, Price: price}

	balance, err := l.Balance(ctx, key)
	if err != nil {
		return res, err
	}
	res.Balance = balance
	if balance < price {
		return res, nil
	}

	after, err := l.UpdateBalance(ctx, key, price, Subtract)
	if err != nil {
		return res, err
	}

	if err := l.AddItem(ctx, key, itemName, 1); err != nil {
		if _, cerr := l.UpdateBalance(ctx, key, price, Add); cerr != nil {
			l.log.Error("purchase refund failed, balance debited without item",
				"ledger_key", key,
				"item", itemName,
				"price", price,
				"error", cerr,
			)
		}
		return res, err
	}

	res.OK = true
	res.Balance = after
	return res, nil
}

// LogAcquisition appends [timestamp, user, item] to the acquisition log.
func (l *Ledger) LogAcquisition(ctx context.Context, user, item string) error {
	err := l.store.AppendRow(ctx, storage.SheetAcquisitions, storage.Row{
		l.now().Format("2006-01-02 15:04:05"), user, item,
	})
	if err != nil {
		return &StoreError{Op: "log acquisition", Err: err}
	}
	return nil
}

// EnsureLogHeader writes the acquisition log header if the sheet is empty.
func (l *Ledger) EnsureLogHeader(ctx context.Context) error {
	rows, err := l.store.ListRows(ctx, storage.SheetAcquisitions)
	if err != nil {
		return &StoreError{Op: "read acquisition log", Err: err}
	}
	if len(rows) > 0 && len(rows[0]) >= 3 {
		return nil
	}
	if err := l.store.AppendRow(ctx, storage.SheetAcquisitions, storage.Row{"time", "user", "item"}); err != nil {
		return &StoreError{Op: "write acquisition log header", Err: err}
	}
	return nil
}

// ClaimAttendance records a claim for day and reports whether it is the first.
func (l *Ledger) ClaimAttendance(ctx context.Context, key, day string) (bool, error) {
	claim := key + ":" + day
	_, err := l.store.GetRow(ctx, storage.SheetAttendance, claim)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, &StoreError{Op: "read attendance", Err: err}
	}

	if err := l.store.AppendRow(ctx, storage.SheetAttendance, storage.Row{claim, l.now().Format(time.RFC3339)}); err != nil {
		return false, &StoreError{Op: "record attendance", Err: err}
	}
	return true, nil
}

func (l *Ledger) getItem(ctx context.Context, key, name string) (Item, error) {
	row, err := l.store.GetRow(ctx, storage.LedgerSheet(key), name)
	if errors.Is(err, storage.ErrNotFound) {
		return Item{Name: name}, err
	}
	if err != nil {
		return Item{}, &StoreError{Op: "read " + name, Err: err}
	}
	return l.parseItem(row), nil
}

func (l *Ledger) parseItem(r storage.Row) Item {
	it := Item{Name: r.Cell(0)}
	if ts := r.Cell(1); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			it.AcquiredAt = t
		}
	}
	if q := r.Cell(2); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			l.log.Warn("bad quantity in ledger row", "item", it.Name, "quantity", q)
		}
		it.Quantity = n
	}
	return it
}

func itemRow(it Item) storage.Row {
	return storage.Row{it.Name, it.AcquiredAt.Format(time.RFC3339), strconv.FormatInt(it.Quantity, 10)}
}
