// Package domain defines the loader's types and ports
package domain

import (
	"time"
)

// BatchDescriptor identifies one source batch and its modification timestamp
type BatchDescriptor struct {
	ID         string    `json:"id" validate:"required"`
	ModifiedAt time.Time `json:"modified_at" validate:"required"`
}

// BusinessRecord is one logical entity instance read from the source.
// Fields carries the business payload only; bookkeeping never travels here.
type BusinessRecord struct {
	EntityID           string         `json:"entity_id" validate:"required"`
	SourceLastModified time.Time      `json:"source_last_modified" validate:"required"`
	Fields             map[string]any `json:"fields" validate:"required"`
}

// Watermark is the last fully committed source timestamp for a tenant table
type Watermark struct {
	TenantID  string    `json:"tenant_id"`
	TableName string    `json:"table_name"`
	Mark      time.Time `json:"watermark"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Outcome tags the result of one Process invocation
type Outcome uint8

// Process outcomes
const (
	OutcomeSkipped Outcome = iota + 1
	OutcomeCommitted
	OutcomeFailed
)

// String renders the outcome for logs and reports
func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCommitted:
		return "committed"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// ProcessResult is the tagged result of Process
type ProcessResult struct {
	Outcome      Outcome `json:"outcome"`
	RowsInserted int     `json:"rows_inserted"`
	RowsClosed   int     `json:"rows_closed"`
	RowsExcluded int     `json:"rows_excluded"`
	Reason       string  `json:"reason,omitempty"` // set on Failed
}

// RunFinish carries bookkeeping written when a run ends
type RunFinish struct {
	Status    string
	Inserted  int
	Closed    int
	Unchanged int
	Excluded  int
	StageMS   int
	CommitMS  int
	ElapsedMS int
	ErrText   string
}

// TableBatch pairs one tenant table with its descriptors and records,
// the unit of work a pooled worker claims
type TableBatch struct {
	TenantID    string
	TableName   string
	Descriptors []BatchDescriptor
	Records     []BusinessRecord
}
