package logstore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ConversationRecord is the persisted unit of one completed prompt/response
// exchange. Records are write-once; nothing in this service updates or
// deletes them after the write returns.
type ConversationRecord struct {
	ID        string
	Timestamp time.Time
	Prompt    string
	Response  string
	Model     string
}

// Logger persists conversation records. Implementations must be safe for
// concurrent use and must assign a fresh identifier and UTC timestamp to
// every record, so identical inputs always produce distinct records.
type Logger interface {
	Log(ctx context.Context, prompt, response, model string) error
	Close() error
}

// NewRecord stamps a conversation with its identity and completion time.
func NewRecord(prompt, response, model string) *ConversationRecord {
	return &ConversationRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Prompt:    prompt,
		Response:  response,
		Model:     model,
	}
}
