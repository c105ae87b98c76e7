package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/galleon-bot/internal/config"
	"github.com/suspectuso/galleon-bot/internal/storage"
)

func TestSeedCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "bot.db")
	seedPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte("gacha:\n  - [Sword]\n  - [Shield]\n"), 0o644))

	t.Setenv("STORE_DRIVER", "sqlite3")
	t.Setenv("STORE_DSN", dbPath)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"seed", "-f", seedPath})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "2 appended")

	store, err := storage.New("sqlite3", dbPath)
	require.NoError(t, err)
	defer store.Close()

	rows, err := store.ListRows(context.Background(), storage.SheetGacha)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSeedCommandMissingFile(t *testing.T) {
	t.Setenv("STORE_DSN", filepath.Join(t.TempDir(), "bot.db"))

	root := newRootCmd()
	root.SetArgs([]string{"seed", "-f", "does-not-exist.yaml"})
	assert.Error(t, root.Execute())
}

func TestSetupLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log, closeLog, err := setupLogger(config.LogConfig{Level: "debug", File: path})
	require.NoError(t, err)

	log.Debug("hello from test")
	closeLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")

	_, _, err = setupLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
