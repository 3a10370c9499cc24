package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basin-labs/controlsite/internal/config"
)

// withConfig swaps the package config for one test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	old := cfg
	cfg = c
	t.Cleanup(func() { cfg = old })
}

func TestInitStore_SQLite(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
	}})

	ctx := context.Background()
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Migrate(ctx))
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "oracle"}})

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestYearRasterPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "indiasat_2019.tif"), yearRasterPath("data", "indiasat", 2019))
	assert.Equal(t, filepath.Join("/srv/rasters", "worldcover_2021.tif"), yearRasterPath("/srv/rasters", "worldcover", 2021))
}
