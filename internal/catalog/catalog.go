// Package catalog reads the operator-maintained sheets: keyword responses,
// reward items and the shop.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/suspectuso/galleon-bot/internal/cache"
	"github.com/suspectuso/galleon-bot/internal/storage"
)

// Keyword is one keyword→response pair. Order in the sheet is significant.
type Keyword struct {
	Keyword  string `json:"keyword"`
	Response string `json:"response"`
}

// ShopItem is a purchasable catalog entry.
type ShopItem struct {
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
}

// Catalog loads sheets from the store, optionally through a cache.
type Catalog struct {
	store storage.Store
	cache cache.Cache
	ttl   time.Duration
	log   *slog.Logger
}

// New creates a catalog. A nil cache or zero ttl disables caching.
func New(store storage.Store, c cache.Cache, ttl time.Duration, log *slog.Logger) *Catalog {
	return &Catalog{
		store: store,
		cache: c,
		ttl:   ttl,
		log:   log,
	}
}

// Keywords returns keyword pairs in sheet order. The first row is a header.
func (c *Catalog) Keywords(ctx context.Context) ([]Keyword, error) {
	return load(ctx, c, storage.SheetKeywords, func(rows []storage.Row) []Keyword {
		var out []Keyword
		for i, r := range rows {
			if i == 0 {
				continue
			}
			k, resp := r.Cell(0), r.Cell(1)
			if k == "" || resp == "" {
				continue
			}
			out = append(out, Keyword{Keyword: k, Response: resp})
		}
		return out
	})
}

// RewardItems returns the gacha candidate list, blank cells skipped.
func (c *Catalog) RewardItems(ctx context.Context) ([]string, error) {
	return load(ctx, c, storage.SheetGacha, func(rows []storage.Row) []string {
		var out []string
		for _, r := range rows {
			if item := r.Cell(0); item != "" {
				out = append(out, item)
			}
		}
		return out
	})
}

// ShopItems returns the shop catalog. Rows whose price is not a
// non-negative integer (such as a header) are skipped.
func (c *Catalog) ShopItems(ctx context.Context) ([]ShopItem, error) {
	return load(ctx, c, storage.SheetShop, func(rows []storage.Row) []ShopItem {
		var out []ShopItem
		for _, r := range rows {
			name := r.Cell(0)
			price, err := strconv.ParseInt(r.Cell(1), 10, 64)
			if name == "" || err != nil || price < 0 {
				c.log.Debug("skip shop row", "row", []string(r))
				continue
			}
			out = append(out, ShopItem{Name: name, Price: price, Description: r.Cell(2)})
		}
		return out
	})
}

// FindShopItem looks a name up case-insensitively.
func (c *Catalog) FindShopItem(ctx context.Context, name string) (ShopItem, bool, error) {
	items, err := c.ShopItems(ctx)
	if err != nil {
		return ShopItem{}, false, err
	}

	name = strings.TrimSpace(name)
	for _, it := range items {
		if strings.EqualFold(it.Name, name) {
			return it, true, nil
		}
	}
	return ShopItem{}, false, nil
}

// Invalidate drops cached copies of every catalog sheet.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	for _, sheet := range []string{storage.SheetKeywords, storage.SheetGacha, storage.SheetShop} {
		if err := c.cache.Delete(ctx, sheet); err != nil {
			c.log.Warn("invalidate catalog cache", "sheet", sheet, "error", err)
		}
	}
}

// load returns a sheet from cache, or parses it from the store and caches
// the result. A cached payload that fails to decode is discarded whole.
func load[T any](ctx context.Context, c *Catalog, sheet string, parse func([]storage.Row) []T) ([]T, error) {
	if c.cache != nil && c.ttl > 0 {
		b, err := c.cache.Get(ctx, sheet)
		switch {
		case err == nil:
			var cached []T
			decodeErr := json.Unmarshal(b, &cached)
			if decodeErr == nil {
				return cached, nil
			}
			c.log.Warn("catalog cache decode", "sheet", sheet, "error", decodeErr)
		case !errors.Is(err, cache.ErrCacheMiss):
			c.log.Warn("catalog cache get", "sheet", sheet, "error", err)
		}
	}

	rows, err := c.store.ListRows(ctx, sheet)
	if err != nil {
		return nil, err
	}
	out := parse(rows)

	if c.cache != nil && c.ttl > 0 {
		b, err := json.Marshal(out)
		if err == nil {
			err = c.cache.Set(ctx, sheet, b, c.ttl)
		}
		if err != nil {
			c.log.Warn("catalog cache set", "sheet", sheet, "error", err)
		}
	}
	return out, nil
}
