package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/galleon-bot/internal/catalog"
	"github.com/suspectuso/galleon-bot/internal/gacha"
	"github.com/suspectuso/galleon-bot/internal/ledger"
	"github.com/suspectuso/galleon-bot/internal/storage"
)

type fixedClock bool

func (f fixedClock) IsAttendanceActive() bool { return bool(f) }

type env struct {
	store    *storage.Memory
	ledger   *ledger.Ledger
	identity *ledger.Identity
	router   *Router
}

func newEnv(t *testing.T, open bool, roll float64, cfg Config) *env {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	l := ledger.New(store, log)
	id := ledger.NewIdentity(store, ledger.IdentityAccount)
	engine := gacha.NewEngine(rand.New(rand.NewSource(1)), gacha.WithRollFunc(func() float64 { return roll }))
	if cfg.Keywords.Gacha == nil {
		cfg.Keywords = DefaultKeywords()
	}
	r := New(cfg, id, l, catalog.New(store, nil, 0, log), engine, fixedClock(open), log)
	return &env{store: store, ledger: l, identity: id, router: r}
}

var alice = ledger.User{ID: "101", Handle: "alice"}

func (e *env) key(t *testing.T, u ledger.User) string {
	t.Helper()
	k, err := e.identity.Resolve(context.Background(), u)
	require.NoError(t, err)
	return k
}

func (e *env) fund(t *testing.T, u ledger.User, amount int64) {
	t.Helper()
	_, err := e.ledger.UpdateBalance(context.Background(), e.key(t, u), amount, ledger.Set)
	require.NoError(t, err)
}

func (e *env) seed(t *testing.T, sheet string, rows ...storage.Row) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, e.store.AppendRow(context.Background(), sheet, r))
	}
}

func rewardRows(n int) []storage.Row {
	rows := make([]storage.Row, n)
	for i := range rows {
		rows[i] = storage.Row{fmt.Sprintf("item%02d", i+1)}
	}
	return rows
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "gacha", CleanText("@bot gacha"))
	assert.Equal(t, "hello there", CleanText("  @bot@school.social hello there @friend "))
	assert.Equal(t, "", CleanText("@bot"))
}

func TestEmptyTextGetsNoReply(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	assert.Equal(t, "", e.router.Handle(context.Background(), alice, "@bot   "))
}

func TestGachaDebitsAndGrants(t *testing.T) {
	e := newEnv(t, true, 0.5, Config{})
	e.seed(t, storage.SheetGacha, rewardRows(50)...)
	e.fund(t, alice, 5)

	reply := e.router.Handle(context.Background(), alice, "@bot gacha")
	assert.True(t, strings.HasPrefix(reply, "@alice "), reply)
	assert.Contains(t, reply, "SSR")
	assert.Contains(t, reply, "2 galleons")

	bal, err := e.ledger.Balance(context.Background(), e.key(t, alice))
	require.NoError(t, err)
	assert.EqualValues(t, 2, bal)

	items, err := e.ledger.Inventory(context.Background(), e.key(t, alice), false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	log, err := e.store.ListRows(context.Background(), storage.SheetAcquisitions)
	require.NoError(t, err)
	require.NotEmpty(t, log)
	assert.Contains(t, log[len(log)-1].Cell(2), "(SSR)")
}

func TestGachaInsufficientFunds(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	e.seed(t, storage.SheetGacha, rewardRows(5)...)
	e.fund(t, alice, 2)

	reply := e.router.Handle(context.Background(), alice, "gacha")
	assert.Contains(t, reply, "costs 3 galleons")

	bal, err := e.ledger.Balance(context.Background(), e.key(t, alice))
	require.NoError(t, err)
	assert.EqualValues(t, 2, bal)
}

func TestGachaUnconfiguredDoesNotCharge(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	e.fund(t, alice, 10)

	reply := e.router.Handle(context.Background(), alice, "gacha")
	assert.Contains(t, reply, "not configured")

	bal, err := e.ledger.Balance(context.Background(), e.key(t, alice))
	require.NoError(t, err)
	assert.EqualValues(t, 10, bal)
}

func TestGachaOdds(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	assert.Equal(t, "@alice "+gacha.Odds(), e.router.Handle(context.Background(), alice, "gacha odds"))
}

func TestAttendanceClosedLeavesBalance(t *testing.T) {
	e := newEnv(t, false, 50, Config{})
	e.fund(t, alice, 4)

	reply := e.router.Handle(context.Background(), alice, "attendance")
	assert.Contains(t, reply, "closed")

	bal, err := e.ledger.Balance(context.Background(), e.key(t, alice))
	require.NoError(t, err)
	assert.EqualValues(t, 4, bal)
}

func TestAttendanceRepeatable(t *testing.T) {
	e := newEnv(t, true, 50, Config{})

	e.router.Handle(context.Background(), alice, "attendance")
	reply := e.router.Handle(context.Background(), alice, "attendance")
	assert.Contains(t, reply, "12 galleons")
}

func TestAttendanceDailyPolicy(t *testing.T) {
	e := newEnv(t, true, 50, Config{AttendancePolicy: AttendanceDaily, Location: time.UTC})
	e.router.now = func() time.Time { return time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC) }

	first := e.router.Handle(context.Background(), alice, "attendance")
	assert.Contains(t, first, "+6 galleons")
	second := e.router.Handle(context.Background(), alice, "attendance")
	assert.Contains(t, second, "already checked in")

	bal, err := e.ledger.Balance(context.Background(), e.key(t, alice))
	require.NoError(t, err)
	assert.EqualValues(t, 6, bal)

	e.router.now = func() time.Time { return time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC) }
	assert.Contains(t, e.router.Handle(context.Background(), alice, "attendance"), "+6 galleons")
}

func TestClassificationOrder(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	e.seed(t, storage.SheetShop, storage.Row{"Butterbeer", "4", "warm"})

	// inventory wins over everything after it
	assert.Contains(t, e.router.Handle(context.Background(), alice, "inventory gacha shop"), "inventory is empty")
	// dice before gacha
	assert.Contains(t, e.router.Handle(context.Background(), alice, "1d100 gacha"), "You rolled")
	// shop before purchase
	assert.Contains(t, e.router.Handle(context.Background(), alice, "buy from the shop"), "Shop:")
}

func TestDiceRange(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	for i := 0; i < 50; i++ {
		reply := e.router.Handle(context.Background(), alice, "1d100")
		require.Contains(t, reply, "You rolled")
	}
}

func TestShopListsBalance(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	e.seed(t, storage.SheetShop,
		storage.Row{"name", "price", "description"},
		storage.Row{"Butterbeer", "4", "warm and sweet"},
	)
	e.fund(t, alice, 9)

	reply := e.router.Handle(context.Background(), alice, "shop")
	assert.Contains(t, reply, "Butterbeer - 4 galleons: warm and sweet")
	assert.Contains(t, reply, "Your balance: 9 galleons")
}

func TestPurchase(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	e.seed(t, storage.SheetShop, storage.Row{"Butterbeer", "4", "warm"})
	e.fund(t, alice, 5)

	reply := e.router.Handle(context.Background(), alice, "buy butterbeer")
	assert.Contains(t, reply, "You bought Butterbeer!")
	assert.Contains(t, reply, "1 galleon")

	reply = e.router.Handle(context.Background(), alice, "buy Butterbeer")
	assert.Contains(t, reply, "only have 1 galleon")

	assert.Contains(t, e.router.Handle(context.Background(), alice, "buy Dragon"), "no \"Dragon\"")
	assert.Contains(t, e.router.Handle(context.Background(), alice, "buy"), "Tell me what to buy")

	items, err := e.ledger.Inventory(context.Background(), e.key(t, alice), false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Butterbeer", items[0].Name)
}

func TestInventoryTruncates(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	key := e.key(t, alice)
	for i := 0; i < 13; i++ {
		require.NoError(t, e.ledger.AddItem(context.Background(), key, "thing"+string(rune('a'+i)), 1))
	}

	reply := e.router.Handle(context.Background(), alice, "inventory")
	assert.Contains(t, reply, "Inventory (13):")
	assert.Contains(t, reply, "... and 3 more")
}

func TestKeywordExactBeforeSubstring(t *testing.T) {
	kws := []catalog.Keyword{
		{Keyword: "owl", Response: "hoot"},
		{Keyword: "owl post", Response: "a letter arrives"},
	}
	assert.Equal(t, "a letter arrives", MatchKeyword(kws, "Owl Post"))
	assert.Equal(t, "hoot", MatchKeyword(kws, "where is the owl post office"))
	assert.Equal(t, "", MatchKeyword(kws, "cat"))
}

func TestKeywordAcquisition(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	e.seed(t, storage.SheetKeywords,
		storage.Row{"keyword", "response"},
		storage.Row{"apple tree", "apple acquired!"},
		storage.Row{"hello", "hi there"},
	)

	assert.Equal(t, "@alice hi there", e.router.Handle(context.Background(), alice, "hello"))
	assert.Equal(t, "@alice apple acquired!", e.router.Handle(context.Background(), alice, "shake the apple tree"))
	assert.Equal(t, "", e.router.Handle(context.Background(), alice, "nothing matches"))

	items, err := e.ledger.Inventory(context.Background(), e.key(t, alice), false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "apple", items[0].Name)
}

func TestAcquiredItem(t *testing.T) {
	assert.Equal(t, "apple", AcquiredItem("apple acquired!", "acquired"))
	assert.Equal(t, "You an owl feather", AcquiredItem("You Acquired an owl feather!", "acquired"))
}

type brokenStore struct {
	*storage.Memory
}

func (brokenStore) GetRow(context.Context, string, string) (storage.Row, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureGivesGenericReply(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := brokenStore{storage.NewMemory()}
	r := New(Config{Keywords: DefaultKeywords()}, ledger.NewIdentity(store, ledger.IdentityAccount),
		ledger.New(store, log), catalog.New(store, nil, 0, log), gacha.NewEngine(nil), fixedClock(true), log)

	assert.Equal(t, "@alice Something went wrong. Please try again.", r.Handle(context.Background(), alice, "attendance"))
}

func TestAcquiredItemKeepsMultibyteText(t *testing.T) {
	// İ shrinks and Ⱥ grows when lower-cased
	assert.Equal(t, "İİİİİİ", AcquiredItem("İİİİİİ acquired", "acquired"))
	assert.Equal(t, "ȺȺȺȺȺȺȺȺ", AcquiredItem("ȺȺȺȺȺȺȺȺ ACQUIRED!", "acquired"))
	assert.Equal(t, "wand", AcquiredItem("wand", "acquired"))
}

func TestMultibyteKeywordAcquisition(t *testing.T) {
	e := newEnv(t, true, 50, Config{})
	e.seed(t, storage.SheetKeywords,
		storage.Row{"keyword", "response"},
		storage.Row{"cave", "ȺȺȺȺȺȺȺȺ acquired!"},
	)

	assert.Equal(t, "@alice ȺȺȺȺȺȺȺȺ acquired!", e.router.Handle(context.Background(), alice, "enter the cave"))

	items, err := e.ledger.Inventory(context.Background(), e.key(t, alice), false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ȺȺȺȺȺȺȺȺ", items[0].Name)
}

func TestPurchasePrefixWithMultibyteKeyword(t *testing.T) {
	cfg := Config{Keywords: DefaultKeywords()}
	cfg.Keywords.Purchase = []string{"İbuy", "ȺBUY"}
	e := newEnv(t, true, 50, cfg)
	e.seed(t, storage.SheetShop, storage.Row{"Butterbeer", "4", "warm"})
	e.fund(t, alice, 10)

	assert.Contains(t, e.router.Handle(context.Background(), alice, "İBUY Butterbeer"), "You bought Butterbeer!")
	assert.Contains(t, e.router.Handle(context.Background(), alice, "ⱥbuy Butterbeer"), "You bought Butterbeer!")
}
