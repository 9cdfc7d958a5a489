package memory

import (
	"time"

	"github.com/google/uuid"
)

// Tier is where a record currently lives.
type Tier string

const (
	TierActive   Tier = "active"
	TierArchived Tier = "archived"
)

// Record is one unit of remembered knowledge or observation.
type Record struct {
	ID             uuid.UUID `json:"id"`
	Content        string    `json:"content"`
	Source         string    `json:"source,omitempty"`
	Importance     float64   `json:"importance"`
	Tier           Tier      `json:"tier"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

// NewRecord is the input to Engine.Record.
type NewRecord struct {
	Content    string  `json:"content" validate:"required,min=1"`
	Source     string  `json:"source,omitempty" validate:"max=128"`
	Importance float64 `json:"importance" validate:"gte=0,lte=1"`
}

// Stats summarises both tiers.
type Stats struct {
	TotalArchived     int64   `json:"total_archived"`
	AverageImportance float64 `json:"average_importance"`
	ActiveCount       int64   `json:"active_count"`
}

// ArchiveStats is what the archive tier reports about itself.
type ArchiveStats struct {
	Total             int64
	AverageImportance float64
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Eligible int `json:"eligible"`
	Archived int `json:"archived"`
	Passes   int `json:"passes"`
	Active   int `json:"active"`
}

// SearchRequest is used by the API to query the archive.
type SearchRequest struct {
	Query string `validate:"max=512"`
	Limit int    `validate:"gte=1,lte=100"`
}
