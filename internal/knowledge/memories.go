package knowledge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"aide/internal/models"
)

// UpsertMemory creates or replaces a memory fact. A fact with an empty ID
// gets a fresh one; an existing ID has its content, type, confidence and
// active flag overwritten.
func (s *Store) UpsertMemory(ctx context.Context, m *models.MemoryFact) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"type", "content", "confidence", "is_active"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("upsert memory %s: %w", m.ID, err)
	}
	return nil
}

// ListMemories returns the user's active memory facts, most confident
// first.
func (s *Store) ListMemories(ctx context.Context, userID string) ([]models.MemoryFact, error) {
	var facts []models.MemoryFact
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("confidence DESC").
		Find(&facts).Error
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return facts, nil
}

// DeleteMemory removes one memory fact owned by the user.
func (s *Store) DeleteMemory(ctx context.Context, userID, memoryID string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", memoryID, userID).
		Delete(&models.MemoryFact{})
	if res.Error != nil {
		return fmt.Errorf("delete memory %s: %w", memoryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("memory %s not found", memoryID)
	}
	return nil
}
