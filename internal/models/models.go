package models

import (
	"time"

	"gorm.io/datatypes"
)

// SourceType describes where an uploaded document came from.
type SourceType string

const (
	SourceUpload SourceType = "upload" // direct file upload
	SourceBulk   SourceType = "bulk"   // bulk ingestion job
)

// Document is an uploaded file registered in the knowledge store. Documents
// are immutable after creation; deletion cascades to their chunks.
type Document struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	UserID     string         `gorm:"index;size:64;not null" json:"user_id"`
	Title      string         `gorm:"size:512;not null" json:"title"`
	SourceType SourceType     `gorm:"size:32;not null" json:"source_type"`
	Metadata   datatypes.JSON `json:"metadata"` // filename, mime, size
	CreatedAt  time.Time      `json:"created_at"`

	Chunks []Chunk `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Document) TableName() string { return "documents" }

// DocumentMetadata is the shape stored in Document.Metadata.
type DocumentMetadata struct {
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int64  `json:"size"`
}

// Chunk is a bounded slice of a document's text. Content is immutable after
// creation; only Embedding may be filled in later. A nil Embedding marks a
// chunk left behind by a partial ingestion failure, eligible for repair.
type Chunk struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	DocumentID string         `gorm:"index;size:36;not null" json:"document_id"`
	ChunkIndex int            `gorm:"column:chunk_index;not null" json:"index"`
	Content    string         `gorm:"type:text;not null" json:"content"`
	Embedding  datatypes.JSON `json:"embedding"` // JSON float array, null until embedded
	Metadata   datatypes.JSON `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (Chunk) TableName() string { return "chunks" }

// MemoryType classifies a long-term memory fact. The first three types are
// high-value and always included in assembled context.
type MemoryType string

const (
	MemoryPreference     MemoryType = "preference"
	MemoryPersonalDetail MemoryType = "personal_detail"
	MemoryProjectContext MemoryType = "project_context"
	MemoryFactType       MemoryType = "fact"
)

// MemoryFact is a free-form fact remembered about a user.
type MemoryFact struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	UserID     string     `gorm:"index;size:64;not null" json:"user_id"`
	Type       MemoryType `gorm:"size:32;not null" json:"type"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	Confidence float64    `gorm:"not null" json:"confidence"` // [0,1]
	IsActive   bool       `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (MemoryFact) TableName() string { return "memory_facts" }

// UsageRecord accumulates token counters per (user, model) pair. Counters are
// monotonically increased with atomic upserts.
type UsageRecord struct {
	UserID       string    `gorm:"primaryKey;size:64" json:"user_id"`
	Model        string    `gorm:"primaryKey;size:128" json:"model"`
	InputTokens  int64     `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens int64     `gorm:"not null;default:0" json:"output_tokens"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (UsageRecord) TableName() string { return "usage_records" }

// ProviderKind names one of the interchangeable completion provider variants.
type ProviderKind string

const (
	ProviderGateway    ProviderKind = "gateway"    // hosted multi-model gateway
	ProviderSelfHosted ProviderKind = "selfhosted" // OpenAI-compatible self-hosted server
	ProviderWorkflow   ProviderKind = "workflow"   // workflow-execution gateway
)

// AgentConfig is the immutable per-turn provider selection. The caller picks
// the agent; this core never chooses one on its own.
type AgentConfig struct {
	ID           string       `json:"id"`
	Provider     ProviderKind `json:"provider"`
	Model        string       `json:"model"`
	SystemPrompt string       `json:"system_prompt"`
	Temperature  float32      `json:"temperature"`
	Endpoint     string       `json:"endpoint"`
	Credential   string       `json:"credential"`
}

// UserProfile is the caller-supplied profile data folded into the system
// prompt. Profile persistence belongs to the outer application.
type UserProfile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	About       string `json:"about"`
}
