// Package usage is the token-accounting ledger. Counters accumulate per
// (user, model) pair with atomic upserts so concurrent turns never lose
// increments, and cost is derived from configured per-million rates.
package usage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aide/internal/config"
	"aide/internal/errs"
	"aide/internal/models"
)

// Ledger records and reports token usage.
type Ledger struct {
	db  *gorm.DB
	cfg config.UsageConfig
}

func NewLedger(db *gorm.DB, cfg config.UsageConfig) *Ledger {
	return &Ledger{db: db, cfg: cfg}
}

// RecordUsage adds the turn's token counts to the (user, model) row,
// creating it on first use. A zero/zero usage is a no-op so providers
// without token accounting never produce empty rows.
func (l *Ledger) RecordUsage(ctx context.Context, userID, model string, u models.Usage) error {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return nil
	}
	rec := models.UsageRecord{
		UserID:       userID,
		Model:        model,
		InputTokens:  int64(u.InputTokens),
		OutputTokens: int64(u.OutputTokens),
		UpdatedAt:    time.Now(),
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "model"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"input_tokens":  gorm.Expr("input_tokens + ?", u.InputTokens),
			"output_tokens": gorm.Expr("output_tokens + ?", u.OutputTokens),
			"updated_at":    time.Now(),
		}),
	}).Create(&rec).Error
	if err != nil {
		return &errs.UsageWriteError{Err: fmt.Errorf("record usage for %s/%s: %w", userID, model, err)}
	}
	return nil
}

// CalculateCost prices the given token counts with the user's override
// rate, falling back to the default rate.
func (l *Ledger) CalculateCost(inputTokens, outputTokens int64, userID string) float64 {
	rate := l.cfg.Default
	if override, ok := l.cfg.Users[userID]; ok {
		rate = override
	}
	in := float64(inputTokens) / 1_000_000 * rate.InputPerMillion
	out := float64(outputTokens) / 1_000_000 * rate.OutputPerMillion
	return in + out
}

// Report is one ledger row with its derived cost.
type Report struct {
	models.UsageRecord
	Cost float64 `json:"cost"`
}

// ListUsage returns every model row for the user with costs attached.
func (l *Ledger) ListUsage(ctx context.Context, userID string) ([]Report, error) {
	var rows []models.UsageRecord
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("model ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list usage for %s: %w", userID, err)
	}
	reports := make([]Report, len(rows))
	for i, r := range rows {
		reports[i] = Report{
			UsageRecord: r,
			Cost:        l.CalculateCost(r.InputTokens, r.OutputTokens, userID),
		}
	}
	return reports, nil
}
