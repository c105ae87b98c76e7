package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/suspectuso/galleon-bot/internal/storage"
)

// IdentityMode selects how an external user maps to a ledger key.
type IdentityMode string

const (
	// IdentityAccount maps each external user id to its own ledger key,
	// created on first use in the accounts sheet.
	IdentityAccount IdentityMode = "account"
	// IdentityLegacy keeps the first-letter mapping of older deployments.
	// Distinct users sharing a first letter share a ledger. Only for reading
	// stores written by the old bot while they are migrated.
	IdentityLegacy IdentityMode = "legacy"
)

// legacyAlphabet is the set of per-letter ledgers the old deployment had.
const legacyAlphabet = "ABCDEFGHIJKLMNOPQRST"

// User identifies the author of a mention.
type User struct {
	ID     string // stable id assigned by the feed
	Handle string
}

// Identity resolves users to ledger keys.
type Identity struct {
	store  storage.Store
	mode   IdentityMode
	now    func() time.Time
	newKey func() string
}

// NewIdentity creates a resolver. Unknown modes fall back to IdentityAccount.
func NewIdentity(store storage.Store, mode IdentityMode) *Identity {
	if mode != IdentityLegacy {
		mode = IdentityAccount
	}
	return &Identity{
		store:  store,
		mode:   mode,
		now:    time.Now,
		newKey: uuid.NewString,
	}
}

// Mode returns the active mapping.
func (i *Identity) Mode() IdentityMode {
	return i.mode
}

// Resolve returns the ledger key for u, registering it if needed.
func (i *Identity) Resolve(ctx context.Context, u User) (string, error) {
	if i.mode == IdentityLegacy {
		return LegacyKey(u.Handle), nil
	}

	externalID := u.ID
	if externalID == "" {
		externalID = "handle:" + strings.ToLower(u.Handle)
	}

	row, err := i.store.GetRow(ctx, storage.SheetAccounts, externalID)
	if err == nil && row.Cell(1) != "" {
		return row.Cell(1), nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", &StoreError{Op: "resolve account", Err: err}
	}

	key := i.newKey()
	newRow := storage.Row{externalID, key, u.Handle, i.now().Format(time.RFC3339)}

	// a registered row missing its ledger key is rewritten in place
	if err == nil {
		if err := i.store.UpdateRow(ctx, storage.SheetAccounts, externalID, newRow); err != nil {
			return "", &StoreError{Op: "repair account", Err: err}
		}
		return key, nil
	}

	if err := i.store.AppendRow(ctx, storage.SheetAccounts, newRow); err != nil {
		return "", &StoreError{Op: "register account", Err: err}
	}
	return key, nil
}

// LegacyKey is the old lossy mapping: the upper-cased first letter of the
// handle, or "A" when that letter is outside A–T.
func LegacyKey(handle string) string {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return legacyAlphabet[:1]
	}
	first := strings.ToUpper(string([]rune(handle)[0]))
	if len(first) == 1 && strings.Contains(legacyAlphabet, first) {
		return first
	}
	return legacyAlphabet[:1]
}
