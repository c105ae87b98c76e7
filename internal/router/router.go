// Package router turns mention text into a command and runs it against the
// ledger, the reward engine and the attendance clock.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/suspectuso/galleon-bot/internal/catalog"
	"github.com/suspectuso/galleon-bot/internal/gacha"
	"github.com/suspectuso/galleon-bot/internal/ledger"
)

var mentionRegex = regexp.MustCompile(`@[\w.\-]+(?:@[\w.\-]+)?`)

// AttendancePolicy decides whether attendance can be claimed repeatedly.
type AttendancePolicy string

const (
	// AttendanceRepeatable pays out on every claim while the window is open.
	AttendanceRepeatable AttendancePolicy = "repeatable"
	// AttendanceDaily pays out once per user per calendar day.
	AttendanceDaily AttendancePolicy = "daily"
)

// Keywords are the user-facing command words. Matching is case-insensitive.
type Keywords struct {
	Inventory         []string
	Dice              []string
	Gacha             []string
	Odds              []string
	Shop              []string
	Purchase          []string
	Attendance        []string
	AcquisitionMarker string
}

// DefaultKeywords returns the English command set.
func DefaultKeywords() Keywords {
	return Keywords{
		Inventory:         []string{"inventory", "bag"},
		Dice:              []string{"1d100"},
		Gacha:             []string{"gacha"},
		Odds:              []string{"odds", "rates"},
		Shop:              []string{"shop"},
		Purchase:          []string{"buy"},
		Attendance:        []string{"attendance"},
		AcquisitionMarker: "acquired",
	}
}

// Config holds the economy settings.
type Config struct {
	Keywords         Keywords
	GachaPrice       int64
	AttendanceReward int64
	AttendancePolicy AttendancePolicy
	CurrencyName     string
	InventoryLimit   int
	Location         *time.Location
}

// AttendanceClock reports whether the attendance window is open.
type AttendanceClock interface {
	IsAttendanceActive() bool
}

// Router dispatches mentions.
type Router struct {
	cfg        Config
	identity   *ledger.Identity
	ledger     *ledger.Ledger
	catalog    *catalog.Catalog
	engine     *gacha.Engine
	attendance AttendanceClock
	log        *slog.Logger
	now        func() time.Time
}

// New creates a router. Zero-valued config fields take defaults.
func New(cfg Config, identity *ledger.Identity, l *ledger.Ledger, c *catalog.Catalog, engine *gacha.Engine, attendance AttendanceClock, log *slog.Logger) *Router {
	if cfg.GachaPrice <= 0 {
		cfg.GachaPrice = 3
	}
	if cfg.AttendanceReward <= 0 {
		cfg.AttendanceReward = 6
	}
	if cfg.AttendancePolicy != AttendanceDaily {
		cfg.AttendancePolicy = AttendanceRepeatable
	}
	if cfg.CurrencyName == "" {
		cfg.CurrencyName = "galleon"
	}
	if cfg.InventoryLimit <= 0 {
		cfg.InventoryLimit = 10
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Router{
		cfg:        cfg,
		identity:   identity,
		ledger:     l,
		catalog:    c,
		engine:     engine,
		attendance: attendance,
		log:        log,
		now:        time.Now,
	}
}

// Handle classifies text and runs the command. It returns the reply, already
// addressed to the author, or "" when the mention needs no answer.
func (r *Router) Handle(ctx context.Context, u ledger.User, text string) string {
	cleaned := CleanText(text)
	if cleaned == "" {
		return ""
	}
	lower := strings.ToLower(cleaned)
	kw := r.cfg.Keywords
	purchaseEnd := hasAnyPrefix(cleaned, kw.Purchase)

	var reply string
	switch {
	case containsAny(lower, kw.Inventory):
		reply = r.handleInventory(ctx, u)
	case containsAny(lower, kw.Dice):
		reply = r.handleDice(u)
	case containsAny(lower, kw.Gacha):
		if containsAny(lower, kw.Odds) {
			reply = gacha.Odds()
		} else {
			reply = r.handleGacha(ctx, u)
		}
	case containsAny(lower, kw.Shop):
		reply = r.handleShop(ctx, u)
	case purchaseEnd >= 0:
		reply = r.handlePurchase(ctx, u, strings.TrimSpace(cleaned[purchaseEnd:]))
	case containsAny(lower, kw.Attendance):
		reply = r.handleAttendance(ctx, u)
	default:
		reply = r.handleKeyword(ctx, u, cleaned)
	}

	if reply == "" {
		return ""
	}
	return "@" + u.Handle + " " + reply
}

// CleanText removes @-mentions and surrounding whitespace.
func CleanText(text string) string {
	return strings.TrimSpace(mentionRegex.ReplaceAllString(text, ""))
}

func (r *Router) handleInventory(ctx context.Context, u ledger.User) string {
	key, err := r.identity.Resolve(ctx, u)
	if err != nil {
		return r.failed("resolve identity", u, err)
	}

	items, err := r.ledger.Inventory(ctx, key, false)
	if err != nil {
		return r.failed("inventory", u, err)
	}
	balance, err := r.ledger.Balance(ctx, key)
	if err != nil {
		return r.failed("balance", u, err)
	}

	r.log.Info("inventory viewed", "user", u.Handle, "ledger_key", key, "items", len(items))

	if len(items) == 0 {
		return fmt.Sprintf("Your inventory is empty.\nBalance: %s", r.money(balance))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Inventory (%d):", len(items))
	for i, it := range items {
		if i == r.cfg.InventoryLimit {
			fmt.Fprintf(&b, "\n... and %d more", len(items)-r.cfg.InventoryLimit)
			break
		}
		if it.Quantity > 1 {
			fmt.Fprintf(&b, "\n• %s x%d", it.Name, it.Quantity)
		} else {
			fmt.Fprintf(&b, "\n• %s", it.Name)
		}
	}
	fmt.Fprintf(&b, "\nBalance: %s", r.money(balance))
	return b.String()
}

func (r *Router) handleDice(u ledger.User) string {
	roll := r.engine.Intn(100) + 1
	r.log.Info("dice rolled", "user", u.Handle, "result", roll)
	return fmt.Sprintf("🎲 You rolled %d!", roll)
}

// handleGacha checks the reward list before touching the balance, so an
// unconfigured catalog never costs the user anything.
func (r *Router) handleGacha(ctx context.Context, u ledger.User) string {
	items, err := r.catalog.RewardItems(ctx)
	if err != nil {
		return r.failed("load reward items", u, err)
	}
	if len(items) == 0 {
		return "Gacha rewards are not configured yet. Please ask an admin."
	}

	key, err := r.identity.Resolve(ctx, u)
	if err != nil {
		return r.failed("resolve identity", u, err)
	}

	price := r.cfg.GachaPrice
	balance, err := r.ledger.Balance(ctx, key)
	if err != nil {
		return r.failed("balance", u, err)
	}
	if balance < price {
		return fmt.Sprintf("A gacha draw costs %s, but you only have %s.", r.money(price), r.money(balance))
	}

	after, err := r.ledger.UpdateBalance(ctx, key, price, ledger.Subtract)
	if err != nil {
		return r.failed("debit gacha price", u, err)
	}

	item, tier := r.engine.Draw(items)
	r.log.Info("gacha drawn",
		"user", u.Handle,
		"ledger_key", key,
		"item", item,
		"tier", tier.Label,
		"balance", after,
	)

	// the draw is paid for; a failed write below is logged, the reply still goes out
	r.grant(ctx, u, key, item, fmt.Sprintf("%s (%s)", item, tier.Label))

	return fmt.Sprintf("%s [%s] You got %s!\nBalance: %s", gacha.Emoji(tier.Label), tier.Label, item, r.money(after))
}

func (r *Router) handleShop(ctx context.Context, u ledger.User) string {
	items, err := r.catalog.ShopItems(ctx)
	if err != nil {
		return r.failed("load shop", u, err)
	}
	if len(items) == 0 {
		return "The shop has nothing for sale right now."
	}

	key, err := r.identity.Resolve(ctx, u)
	if err != nil {
		return r.failed("resolve identity", u, err)
	}
	balance, err := r.ledger.Balance(ctx, key)
	if err != nil {
		return r.failed("balance", u, err)
	}

	var b strings.Builder
	b.WriteString("🛒 Shop:")
	for _, it := range items {
		fmt.Fprintf(&b, "\n• %s - %s", it.Name, r.money(it.Price))
		if it.Description != "" {
			fmt.Fprintf(&b, ": %s", it.Description)
		}
	}
	fmt.Fprintf(&b, "\nYour balance: %s", r.money(balance))
	if len(r.cfg.Keywords.Purchase) > 0 {
		fmt.Fprintf(&b, "\nTo buy: %s <item name>", r.cfg.Keywords.Purchase[0])
	}
	return b.String()
}

func (r *Router) handlePurchase(ctx context.Context, u ledger.User, name string) string {
	if name == "" {
		return fmt.Sprintf("Tell me what to buy: %s <item name>", r.cfg.Keywords.Purchase[0])
	}

	item, ok, err := r.catalog.FindShopItem(ctx, name)
	if err != nil {
		return r.failed("load shop", u, err)
	}
	if !ok {
		return fmt.Sprintf("There is no %q in the shop.", name)
	}

	key, err := r.identity.Resolve(ctx, u)
	if err != nil {
		return r.failed("resolve identity", u, err)
	}

	res, err := r.ledger.Purchase(ctx, key, item.Name, item.Price)
	if err != nil {
		return r.failed("purchase", u, err)
	}
	if !res.OK {
		return fmt.Sprintf("%s costs %s, but you only have %s.", item.Name, r.money(item.Price), r.money(res.Balance))
	}

	r.log.Info("item purchased",
		"user", u.Handle,
		"ledger_key", key,
		"item", item.Name,
		"price", item.Price,
		"balance", res.Balance,
	)

	if err := r.ledger.LogAcquisition(ctx, u.Handle, item.Name+" (purchase)"); err != nil {
		r.log.Error("log purchase", "user", u.Handle, "error", err)
	}

	return fmt.Sprintf("You bought %s!\nBalance: %s", item.Name, r.money(res.Balance))
}

func (r *Router) handleAttendance(ctx context.Context, u ledger.User) string {
	if !r.attendance.IsAttendanceActive() {
		return "Attendance is closed right now."
	}

	key, err := r.identity.Resolve(ctx, u)
	if err != nil {
		return r.failed("resolve identity", u, err)
	}

	if r.cfg.AttendancePolicy == AttendanceDaily {
		day := r.now().In(r.cfg.Location).Format("2006-01-02")
		first, err := r.ledger.ClaimAttendance(ctx, key, day)
		if err != nil {
			return r.failed("claim attendance", u, err)
		}
		if !first {
			return "You have already checked in today."
		}
	}

	reward := r.cfg.AttendanceReward
	balance, err := r.ledger.UpdateBalance(ctx, key, reward, ledger.Add)
	if err != nil {
		return r.failed("credit attendance", u, err)
	}

	r.log.Info("attendance claimed", "user", u.Handle, "ledger_key", key, "balance", balance)

	if err := r.ledger.LogAcquisition(ctx, u.Handle, fmt.Sprintf("%s (attendance)", r.money(reward))); err != nil {
		r.log.Error("log attendance", "user", u.Handle, "error", err)
	}

	return fmt.Sprintf("✅ Checked in! +%s\nBalance: %s", r.money(reward), r.money(balance))
}

// handleKeyword answers from the keyword sheet: exact match first, then the
// first keyword (in sheet order) contained in the text.
func (r *Router) handleKeyword(ctx context.Context, u ledger.User, cleaned string) string {
	keywords, err := r.catalog.Keywords(ctx)
	if err != nil {
		r.log.Error("load keywords", "user", u.Handle, "error", err)
		return ""
	}

	response := MatchKeyword(keywords, cleaned)
	if response == "" {
		return ""
	}

	marker := r.cfg.Keywords.AcquisitionMarker
	if marker != "" && strings.Contains(strings.ToLower(response), strings.ToLower(marker)) {
		item := AcquiredItem(response, marker)
		if item != "" {
			key, err := r.identity.Resolve(ctx, u)
			if err != nil {
				r.log.Error("resolve identity", "user", u.Handle, "error", err)
			} else {
				r.grant(ctx, u, key, item, item)
			}
		}
	}

	return response
}

// MatchKeyword returns the response for text, or "".
func MatchKeyword(keywords []catalog.Keyword, text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, k := range keywords {
		if strings.ToLower(k.Keyword) == lower {
			return k.Response
		}
	}
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k.Keyword)) {
			return k.Response
		}
	}
	return ""
}

// AcquiredItem strips the acquisition marker and a trailing "!" from a
// keyword response, leaving the item text to log.
func AcquiredItem(response, marker string) string {
	item := response
	if loc := foldPattern("", marker).FindStringIndex(response); loc != nil {
		item = response[:loc[0]] + response[loc[1]:]
	}
	item = strings.Join(strings.Fields(item), " ")
	item = strings.TrimSpace(strings.TrimSuffix(item, "!"))
	return item
}

// grant logs the acquisition and adds item to the inventory. Failures are
// logged only.
func (r *Router) grant(ctx context.Context, u ledger.User, key, item, logItem string) {
	if err := r.ledger.LogAcquisition(ctx, u.Handle, logItem); err != nil {
		r.log.Error("log acquisition", "user", u.Handle, "item", logItem, "error", err)
	}
	if err := r.ledger.AddItem(ctx, key, item, 1); err != nil {
		r.log.Error("add item", "user", u.Handle, "ledger_key", key, "item", item, "error", err)
	}
}

func (r *Router) failed(op string, u ledger.User, err error) string {
	r.log.Error(op, "user", u.Handle, "store_error", ledger.IsStoreError(err), "error", err)
	return "Something went wrong. Please try again."
}

func (r *Router) money(n int64) string {
	name := r.cfg.CurrencyName
	if n != 1 && !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return fmt.Sprintf("%d %s", n, name)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// hasAnyPrefix returns the byte offset in text just past the first word it
// starts with, ignoring case, or -1.
func hasAnyPrefix(text string, words []string) int {
	for _, w := range words {
		if w == "" {
			continue
		}
		if loc := foldPattern("^", w).FindStringIndex(text); loc != nil {
			return loc[1]
		}
	}
	return -1
}

// foldPattern matches word ignoring case. Match offsets index the input as
// given, never a case-folded copy.
func foldPattern(anchor, word string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + anchor + regexp.QuoteMeta(word))
}
