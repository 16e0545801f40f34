// Package domain defines the reconciliation engine's types and ports
package domain

import "time"

// Request scopes one reconciliation run. Zero tenant or table means all.
// DryRun is the default posture; destructive execution additionally requires
// the exact confirmation token for the requested scope.
type Request struct {
	TenantID          string `json:"tenant_id,omitempty"`
	TableName         string `json:"table_name,omitempty"`
	DryRun            bool   `json:"dry_run"`
	ConfirmationToken string `json:"confirmation_token,omitempty"`
	BatchLimit        int    `json:"batch_limit,omitempty"` // groups per pass per table; <=0 -> default
}

// GroupKey identifies one offending group in either pass
type GroupKey struct {
	TenantID           string    `json:"tenant_id"`
	EntityID           string    `json:"entity_id"`
	SourceLastModified time.Time `json:"source_last_modified"`
}

// Member is one physical row inside a group
type Member struct {
	RowID         string    `json:"row_id"`
	EffectiveDate time.Time `json:"effective_date"`
	IsCurrent     bool      `json:"is_current"`
}

// Group is a group key with its members, ordered by the retention tie-break
// (earliest effective date, then lowest row id)
type Group struct {
	Key     GroupKey `json:"key"`
	Members []Member `json:"members"`
}

// TableReport is the per-table slice of a reconciliation report
type TableReport struct {
	TableName       string `json:"table_name"`
	DuplicateGroups int    `json:"duplicate_groups"`
	ViolationGroups int    `json:"violation_groups"`
	RowsRemoved     int    `json:"rows_removed"`
	RowsBefore      uint64 `json:"rows_before"`
	RowsAfter       uint64 `json:"rows_after"`
}

// Report is the outcome of one reconciliation run
type Report struct {
	DryRun          bool          `json:"dry_run"`
	DuplicateGroups int           `json:"duplicate_groups"`
	ViolationGroups int           `json:"violation_groups"`
	RowsRemoved     int           `json:"rows_removed"`
	RowsBefore      uint64        `json:"rows_before"`
	RowsAfter       uint64        `json:"rows_after"`
	Tables          []TableReport `json:"tables"`
	Samples         []Group       `json:"samples,omitempty"`
}
