package usage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"aide/internal/config"
	"aide/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.UsageRecord{}))
	// a single connection keeps concurrent upserts serialized in sqlite
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func testRates() config.UsageConfig {
	return config.UsageConfig{
		Default: config.RateConfig{InputPerMillion: 3, OutputPerMillion: 15},
		Users: map[string]config.RateConfig{
			"vip": {InputPerMillion: 1, OutputPerMillion: 5},
		},
	}
}

func TestRecordUsageAccumulates(t *testing.T) {
	ledger := NewLedger(openTestDB(t), testRates())
	ctx := context.Background()

	require.NoError(t, ledger.RecordUsage(ctx, "u1", "gpt-4o", models.Usage{InputTokens: 100, OutputTokens: 20}))
	require.NoError(t, ledger.RecordUsage(ctx, "u1", "gpt-4o", models.Usage{InputTokens: 50, OutputTokens: 5}))
	require.NoError(t, ledger.RecordUsage(ctx, "u1", "llama3", models.Usage{InputTokens: 7}))

	reports, err := ledger.ListUsage(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, int64(150), reports[0].InputTokens)
	assert.Equal(t, int64(25), reports[0].OutputTokens)
	assert.Equal(t, "llama3", reports[1].Model)
}

func TestRecordUsageZeroIsNoOp(t *testing.T) {
	db := openTestDB(t)
	ledger := NewLedger(db, testRates())

	require.NoError(t, ledger.RecordUsage(context.Background(), "u1", "workflow", models.Usage{}))

	var count int64
	require.NoError(t, db.Model(&models.UsageRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordUsageConcurrentIncrements(t *testing.T) {
	ledger := NewLedger(openTestDB(t), testRates())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ledger.RecordUsage(ctx, "u1", "gpt-4o", models.Usage{InputTokens: 10, OutputTokens: 2})
		}()
	}
	wg.Wait()

	reports, err := ledger.ListUsage(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, int64(n*10), reports[0].InputTokens)
	assert.Equal(t, int64(n*2), reports[0].OutputTokens)
}

func TestCalculateCost(t *testing.T) {
	ledger := NewLedger(nil, testRates())

	assert.Zero(t, ledger.CalculateCost(0, 0, "u1"))
	// default rate: 3/M input, 15/M output
	assert.InDelta(t, 3+15, ledger.CalculateCost(1_000_000, 1_000_000, "u1"), 1e-9)
	// per-user override
	assert.InDelta(t, 1+5, ledger.CalculateCost(1_000_000, 1_000_000, "vip"), 1e-9)
}
