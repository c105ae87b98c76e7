package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/suspectuso/galleon-bot/internal/storage"
)

// SeedFile maps sheet names to their rows.
type SeedFile map[string][]storage.Row

// ParseSeed reads a YAML seed file:
//
//	keywords:
//	  - [keyword, response]
//	  - [hello, hi there]
//	gacha:
//	  - [Sword]
func ParseSeed(r io.Reader) (SeedFile, error) {
	var raw map[string][][]string
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return SeedFile{}, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	out := make(SeedFile, len(raw))
	for sheet, rows := range raw {
		for _, cells := range rows {
			out[sheet] = append(out[sheet], storage.Row(cells))
		}
	}
	return out, nil
}

// SeedResult counts the rows written per outcome.
type SeedResult struct {
	Appended int
	Updated  int
	Skipped  int
}

// Seed upserts every row by key, then drops the cached sheets so readers
// sharing the cache see the new rows. Rows with an empty key are skipped.
func (c *Catalog) Seed(ctx context.Context, file SeedFile) (SeedResult, error) {
	defer c.Invalidate(ctx)

	var res SeedResult
	store := c.store

	sheets := make([]string, 0, len(file))
	for name := range file {
		sheets = append(sheets, name)
	}
	sort.Strings(sheets)

	for _, sheet := range sheets {
		for _, row := range file[sheet] {
			key := row.Key()
			if key == "" {
				res.Skipped++
				continue
			}

			_, err := store.GetRow(ctx, sheet, key)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				if err := store.AppendRow(ctx, sheet, row); err != nil {
					return res, fmt.Errorf("append %s/%s: %w", sheet, key, err)
				}
				res.Appended++
			case err != nil:
				return res, fmt.Errorf("get %s/%s: %w", sheet, key, err)
			default:
				if err := store.UpdateRow(ctx, sheet, key, row); err != nil {
					return res, fmt.Errorf("update %s/%s: %w", sheet, key, err)
				}
				res.Updated++
			}
		}
	}
	return res, nil
}
