package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/suspectuso/galleon-bot/internal/catalog"
	"github.com/suspectuso/galleon-bot/internal/config"
	"github.com/suspectuso/galleon-bot/internal/storage"
)

func newSeedCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load keyword, gacha and shop sheets from a YAML file",
		Long: `Load sheets from a YAML file mapping sheet names to rows.

Rows whose key (first cell) already exists are replaced; the rest are appended.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSeed()
			if err != nil {
				return err
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			file, err := catalog.ParseSeed(f)
			if err != nil {
				return err
			}

			store, err := storage.New(cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return fmt.Errorf("init storage: %w", err)
			}
			defer store.Close()

			c, err := openCache(cfg.Cache)
			if err != nil {
				return fmt.Errorf("init cache: %w", err)
			}
			if c != nil {
				defer c.Close()
			}

			cat := catalog.New(store, c, cfg.Cache.TTL, slog.Default())
			res, err := cat.Seed(cmd.Context(), file)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s: %d appended, %d updated, %d skipped\n",
				path, res.Appended, res.Updated, res.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "catalog.yaml", "seed file")
	return cmd
}
