package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scrapekit/saasdir/internal/config"
)

func loadedConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestApplyOverridesSinglePage(t *testing.T) {
	cfg := loadedConfig(t)
	require.NoError(t, applyOverrides(&cfg, []string{"7"}, 0, 0, 0, false))
	require.Equal(t, 7, cfg.Scraper.StartPage)
	require.Equal(t, 7, cfg.Scraper.EndPage)
}

func TestApplyOverridesRange(t *testing.T) {
	cfg := loadedConfig(t)
	require.NoError(t, applyOverrides(&cfg, []string{"2", "9"}, 0, 0, 0, false))
	require.Equal(t, 2, cfg.Scraper.StartPage)
	require.Equal(t, 9, cfg.Scraper.EndPage)
}

func TestApplyOverridesFlagsWin(t *testing.T) {
	cfg := loadedConfig(t)
	require.NoError(t, applyOverrides(&cfg, []string{"2", "9"}, 3, 8, 6, true))
	require.Equal(t, 3, cfg.Scraper.StartPage)
	require.Equal(t, 8, cfg.Scraper.EndPage)
	require.Equal(t, 6, cfg.Scraper.Workers)
	require.True(t, cfg.Render.Enabled)
}

func TestApplyOverridesRejectsGarbage(t *testing.T) {
	cfg := loadedConfig(t)
	require.Error(t, applyOverrides(&cfg, []string{"seven"}, 0, 0, 0, false))

	cfg = loadedConfig(t)
	require.Error(t, applyOverrides(&cfg, []string{"9", "2"}, 0, 0, 0, false))
}
