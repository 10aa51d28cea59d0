package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/watchangel/internal/watch/common/log"
	"github.com/haukened/watchangel/internal/watch/config"
	"github.com/haukened/watchangel/internal/watch/domain"
	"github.com/haukened/watchangel/internal/watch/gateways/fakebrowser"
	"github.com/haukened/watchangel/internal/watch/repos/blockstate"
	"github.com/haukened/watchangel/internal/watch/repos/rules"
)

const testFixture = `{
	"page_size": 0,
	"items": [
		{"id": "AAAAA", "title": "scam offer", "channel_name": "Bad", "channel_url": "https://example.test/@bad"},
		{"id": "BBBBB", "title": "cooking basics", "channel_name": "Good", "channel_url": "https://example.test/@good"},
		{"id": "CCCCC", "title": "another scam", "channel_name": "Worse", "channel_url": "https://example.test/@worse"}
	],
	"channels": [
		{"url": "https://example.test/@bad"},
		{"url": "https://example.test/@worse"}
	]
}`

// setupEnv writes a config directory and fixture and points the
// environment at them.
func setupEnv(t *testing.T) (configDir, stateDir string) {
	t.Helper()
	configDir = t.TempDir()
	stateDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, rules.KeywordsFile), []byte("scam\n"), 0o644))
	fixture := filepath.Join(configDir, "feed.json")
	require.NoError(t, os.WriteFile(fixture, []byte(testFixture), 0o644))

	t.Setenv("WATCHANGEL_ENV", "dev")
	t.Setenv("WATCHANGEL_CONFIG_DIR", configDir)
	t.Setenv("WATCHANGEL_STATE_DIR", stateDir)
	t.Setenv("WATCHANGEL_BROWSER_DRIVER", "fake")
	t.Setenv("WATCHANGEL_BROWSER_FIXTURE", fixture)
	t.Setenv("WATCHANGEL_RULES_WATCH", "false")
	t.Setenv("WATCHANGEL_SCAN_PAUSE", "0s")
	t.Setenv("WATCHANGEL_WATCH_REMOVAL_PAUSE", "0s")
	t.Setenv("WATCHANGEL_TIMEOUT_POLL", "1ms")
	t.Setenv("WATCHANGEL_TIMEOUT_BUTTON", "50ms")
	return configDir, stateDir
}

func TestApplication_CleanupPass(t *testing.T) {
	log.SetLogger(log.NewNoopLogger())
	_, stateDir := setupEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	app, err := buildApplication(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.Run(context.Background(), true))

	b, ok := app.browser.(*fakebrowser.Browser)
	require.True(t, ok)
	assert.Equal(t, []string{"CCCCC", "AAAAA"}, b.RemovedIDs())
	assert.Equal(t, []string{"BBBBB"}, b.RemainingIDs())

	recs, err := blockstate.NewJSONLLog(filepath.Join(stateDir, blockstate.LogFile), nil).Load()
	require.NoError(t, err)
	var names []string
	for _, r := range recs {
		names = append(names, r.ChannelName)
	}
	assert.ElementsMatch(t, []string{"Bad", "Worse"}, names)
}

func TestApplication_WatchLoopStopsWhenCancelled(t *testing.T) {
	log.SetLogger(log.NewNoopLogger())
	setupEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	app, err := buildApplication(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, app.Run(ctx, false))
}

func TestBuildApplication_ConfigurationVariations(t *testing.T) {
	tests := []struct {
		name          string
		setupEnv      func(t *testing.T)
		wantErr       bool
		errorContains string
	}{
		{
			name:     "jsonl backend",
			setupEnv: func(t *testing.T) {},
		},
		{
			name: "bolt backend",
			setupEnv: func(t *testing.T) {
				t.Setenv("WATCHANGEL_STATE_BACKEND", "bolt")
			},
		},
		{
			name: "rule watching enabled",
			setupEnv: func(t *testing.T) {
				t.Setenv("WATCHANGEL_RULES_WATCH", "true")
			},
		},
		{
			name: "missing fixture",
			setupEnv: func(t *testing.T) {
				t.Setenv("WATCHANGEL_BROWSER_FIXTURE", filepath.Join(t.TempDir(), "missing.json"))
			},
			wantErr:       true,
			errorContains: "failed to open browser session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log.SetLogger(log.NewNoopLogger())
			setupEnv(t)
			tt.setupEnv(t)

			cfg, err := config.Load()
			require.NoError(t, err)

			app, err := buildApplication(context.Background(), cfg)
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
				assert.Nil(t, app)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, app)
			app.Close()
		})
	}
}

func TestBuildApplication_SessionUnavailable(t *testing.T) {
	log.SetLogger(log.NewNoopLogger())
	setupEnv(t)
	orig := newBrowser
	newBrowser = func(context.Context, *config.AppConfig, log.Logger) (browserSession, error) {
		return nil, fmt.Errorf("%w: no chrome", domain.ErrSessionUnavailable)
	}
	defer func() { newBrowser = orig }()

	cfg, err := config.Load()
	require.NoError(t, err)
	_, err = buildApplication(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSessionUnavailable))
}

func TestDisabledIfZero(t *testing.T) {
	assert.Equal(t, int64(-1), int64(disabledIfZero(0)))
	assert.Equal(t, int64(5), int64(disabledIfZero(5)))
}
