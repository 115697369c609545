package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforcelab/intraday/internal/domain"
)

const catalogYAML = `
version: "%s"
rules:
  - id: DAILY_HOURS
    category: working_time
    penalty: fine
    penalty_above_max: serious
    limits:
      adult: { standard: 8, maximum: %d }
      minor: { standard: 7, maximum: 7 }
`

func writeCatalogFile(t *testing.T, version string, adultMax int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte(fmt.Sprintf(catalogYAML, version, adultMax))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCatalog_LoadEmbeddedDefaults(t *testing.T) {
	catalog := NewCatalog("", 0, zerolog.Nop())
	require.NoError(t, catalog.Load())

	matrix := catalog.Matrix()
	require.NotNil(t, matrix)
	assert.Len(t, matrix.Order(), 6)
	assert.Equal(t, 12.0, matrix.Limits(domain.AgeAdult).DailyMaxHours)
}

func TestCatalog_LoadFromFile(t *testing.T) {
	path := writeCatalogFile(t, "site-1", 12)

	catalog := NewCatalog(path, time.Hour, zerolog.Nop())
	require.NoError(t, catalog.Load())

	matrix := catalog.Matrix()
	require.NotNil(t, matrix)
	assert.Equal(t, "site-1", matrix.Version())
}

func TestCatalog_LoadMissingFile(t *testing.T) {
	catalog := NewCatalog(filepath.Join(t.TempDir(), "absent.yaml"), time.Hour, zerolog.Nop())
	err := catalog.Load()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCatalog_RefreshIsNoOpWhenUnchanged(t *testing.T) {
	path := writeCatalogFile(t, "site-1", 12)

	catalog := NewCatalog(path, time.Hour, zerolog.Nop())
	require.NoError(t, catalog.Load())
	before := catalog.Matrix()

	reloaded := false
	catalog.SetOnReload(func(*Matrix) { reloaded = true })

	require.NoError(t, catalog.Refresh())
	assert.Same(t, before, catalog.Matrix(), "unchanged catalog must not swap the matrix")
	assert.False(t, reloaded, "no-op refresh must not fire the reload callback")
}

func TestCatalog_RefreshSwapsOnChange(t *testing.T) {
	path := writeCatalogFile(t, "site-1", 12)

	catalog := NewCatalog(path, time.Hour, zerolog.Nop())
	require.NoError(t, catalog.Load())
	before := catalog.Matrix()

	var swapped *Matrix
	catalog.SetOnReload(func(m *Matrix) { swapped = m })

	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(catalogYAML, "site-2", 10)), 0o644))
	require.NoError(t, catalog.Refresh())

	after := catalog.Matrix()
	assert.NotSame(t, before, after)
	assert.Equal(t, "site-2", after.Version())
	assert.Equal(t, 10.0, after.Limits(domain.AgeAdult).DailyMaxHours)
	assert.Same(t, after, swapped, "reload callback must see the new matrix")
}

func TestCatalog_RefreshKeepsMatrixOnBadFile(t *testing.T) {
	path := writeCatalogFile(t, "site-1", 12)

	catalog := NewCatalog(path, time.Hour, zerolog.Nop())
	require.NoError(t, catalog.Load())
	before := catalog.Matrix()

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	err := catalog.Refresh()
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Same(t, before, catalog.Matrix(), "failed refresh must keep the last good matrix")
}

func TestCatalog_StartStopIdempotent(t *testing.T) {
	catalog := NewCatalog("", time.Hour, zerolog.Nop())
	require.NoError(t, catalog.Load())

	catalog.Start()
	catalog.Start()
	catalog.Stop()
	catalog.Stop()
}
