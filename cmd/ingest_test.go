package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBoundaryZIP(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(dir, "boundaries.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestResolveBoundaryPath_ShapefilePassthrough(t *testing.T) {
	path, err := resolveBoundaryPath("data/villages.shp")
	require.NoError(t, err)
	assert.Equal(t, "data/villages.shp", path)
}

func TestResolveBoundaryPath_Archive(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeBoundaryZIP(t, dir, map[string]string{
		"villages.shp": "shp bytes",
		"villages.dbf": "dbf bytes",
		"villages.shx": "shx bytes",
	})

	path, err := resolveBoundaryPath(zipPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "villages.shp"), path)

	// Sidecars must land beside the shapefile.
	_, err = os.Stat(filepath.Join(dir, "villages.dbf"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "villages.shx"))
	require.NoError(t, err)
}

func TestResolveBoundaryPath_ArchiveWithoutShapefile(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeBoundaryZIP(t, dir, map[string]string{
		"readme.txt": "docs",
	})

	_, err := resolveBoundaryPath(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want exactly 1")
}

func TestResolveBoundaryPath_ArchiveWithTwoShapefiles(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeBoundaryZIP(t, dir, map[string]string{
		"mh/villages.shp": "shp",
		"ka/villages.shp": "shp",
	})

	_, err := resolveBoundaryPath(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want exactly 1")
}
