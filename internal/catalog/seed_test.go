package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/galleon-bot/internal/cache"
	"github.com/suspectuso/galleon-bot/internal/storage"
)

const seedYAML = `
keywords:
  - [keyword, response]
  - [hello, hi there]
  - [apple tree, apple acquired!]
shop:
  - [Butterbeer, "4", warm and sweet]
gacha:
  - [Sword]
  - [""]
`

func TestParseAndSeed(t *testing.T) {
	file, err := ParseSeed(strings.NewReader(seedYAML))
	require.NoError(t, err)
	require.Len(t, file["keywords"], 3)

	s := storage.NewMemory()
	require.NoError(t, s.AppendRow(context.Background(), storage.SheetShop, storage.Row{"Butterbeer", "9", "old"}))

	c := New(s, nil, 0, discardLogger())
	res, err := c.Seed(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, SeedResult{Appended: 4, Updated: 1, Skipped: 1}, res)

	item, ok, err := c.FindShopItem(context.Background(), "butterbeer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 4, item.Price)

	kws, err := c.Keywords(context.Background())
	require.NoError(t, err)
	assert.Len(t, kws, 2)
}

func TestParseSeedEmpty(t *testing.T) {
	file, err := ParseSeed(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, file)

	_, err = ParseSeed(strings.NewReader("keywords: [oops"))
	assert.Error(t, err)
}

func TestSeedRefreshesCachedSheets(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemory()
	seed(t, s, storage.SheetGacha, storage.Row{"Sword"})

	mc := cache.NewMemoryCache(time.Hour)
	defer mc.Close()
	c := New(s, mc, time.Hour, discardLogger())

	items, err := c.RewardItems(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Sword"}, items)

	_, err = c.Seed(ctx, SeedFile{storage.SheetGacha: {{"Shield"}}})
	require.NoError(t, err)

	items, err = c.RewardItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Sword", "Shield"}, items)
}
