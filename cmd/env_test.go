package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hearing-sync/internal/config"
	"github.com/sells-group/hearing-sync/internal/dedup"
	"github.com/sells-group/hearing-sync/internal/model"
)

// testConfig returns a valid sqlite configuration rooted in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
		Sync: config.SyncConfig{
			Concurrency:            3,
			APIUpdateThreshold:     0.8,
			WebsiteUpdateThreshold: 0.7,
		},
		Dedup:    config.DedupConfig{AutoMergeThreshold: 0.9, ReviewThreshold: 0.7},
		Schedule: config.ScheduleConfig{DailyHour: 6, WebsiteHours: []int{8, 14, 20}},
		Breaker:  config.BreakerConfig{FailureThreshold: 5, RecoveryMinutes: 60},
		Server:   config.ServerConfig{Port: 8080},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = testConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	// When DatabaseURL is empty, initStore should default to "hearings.db".
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir) //nolint:errcheck

	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite"}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "hearings.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	cfg = &config.Config{Store: config.StoreConfig{Driver: "mysql"}}

	st, err := initStore(context.Background())
	assert.Nil(t, st)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitSync_WithoutAPIKey(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	env, err := initSync(ctx, "sync")
	require.NoError(t, err)
	defer env.Close()

	st, err := env.Orch.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.False(t, st.Sources[model.SourceCongressAPI].Configured)
	assert.True(t, st.Sources[model.SourceWebsite].Configured)
	assert.Len(t, st.Breakers, 2)
}

func TestInitSync_WithAPIKey(t *testing.T) {
	cfg = testConfig(t)
	cfg.Congress.Key = "test-key"
	ctx := context.Background()

	env, err := initSync(ctx, "sync")
	require.NoError(t, err)
	defer env.Close()

	st, err := env.Orch.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Sources[model.SourceCongressAPI].Configured)
}

func TestInitSync_InvalidConfig(t *testing.T) {
	cfg = testConfig(t)
	cfg.Sync.Concurrency = 0

	_, err := initSync(context.Background(), "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.concurrency")
}

func TestNewEngine_ThresholdPrecedence(t *testing.T) {
	c := config.DedupConfig{
		AutoMergeThreshold: 0.92,
		ReviewThreshold:    0.72,
		Committees: map[string]dedup.Thresholds{
			"ssci": {AutoMerge: 0.95, Review: 0.8},
			"ssju": {Review: 0.75},
		},
	}
	configs := []model.SyncConfig{
		{CommitteeCode: "SSCI", AutoMergeThreshold: 0.97},
		{CommitteeCode: "SCOM"},
	}

	e := newEngine(c, configs)
	assert.Equal(t, dedup.Thresholds{AutoMerge: 0.92, Review: 0.72}, e.ThresholdsFor("SCOM"))
	assert.Equal(t, dedup.Thresholds{AutoMerge: 0.97, Review: 0.8}, e.ThresholdsFor("SSCI"))
	assert.Equal(t, dedup.Thresholds{AutoMerge: 0.92, Review: 0.75}, e.ThresholdsFor("SSJU"))
}

func TestSyncerConfig(t *testing.T) {
	c := testConfig(t)
	c.Sync.APIDaysBack = 10
	c.Sync.DedupWindowDays = 45
	loc := time.FixedZone("EST", -5*60*60)

	sc := syncerConfig(c, loc)
	assert.Equal(t, 10, sc.APIDaysBack)
	assert.Equal(t, 45, sc.DedupWindowDays)
	assert.Equal(t, 3, sc.Concurrency)
	assert.Equal(t, []int{8, 14, 20}, sc.WebsiteHours)
	assert.Equal(t, loc, sc.Location)
}
