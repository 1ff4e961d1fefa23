// Package history keeps the rolling per-conversation message list in
// Redis so the API layer can rebuild the prompt for each turn.
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"aide/internal/models"
)

const keyPrefix = "aide:history:"

// Store is a capped conversation log.
type Store struct {
	client *redis.Client
	cap    int
}

// NewStore builds a history store that keeps at most cap messages per
// conversation.
func NewStore(client *redis.Client, cap int) *Store {
	if cap <= 0 {
		cap = 50
	}
	return &Store{client: client, cap: cap}
}

func key(conversationID string) string {
	return keyPrefix + conversationID
}

// Append pushes messages onto the conversation log and trims it to the
// configured cap, dropping the oldest entries.
func (s *Store) Append(ctx context.Context, conversationID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode history message: %w", err)
		}
		values = append(values, b)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key(conversationID), values...)
	pipe.LTrim(ctx, key(conversationID), int64(-s.cap), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history for %s: %w", conversationID, err)
	}
	return nil
}

// Load returns the conversation log, oldest first. A missing
// conversation yields an empty slice.
func (s *Store) Load(ctx context.Context, conversationID string) ([]models.Message, error) {
	raw, err := s.client.LRange(ctx, key(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", conversationID, err)
	}
	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			// skip entries an older build may have written differently
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Clear deletes the conversation log.
func (s *Store) Clear(ctx context.Context, conversationID string) error {
	if err := s.client.Del(ctx, key(conversationID)).Err(); err != nil {
		return fmt.Errorf("clear history for %s: %w", conversationID, err)
	}
	return nil
}
