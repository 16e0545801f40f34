// Package scd2 holds the pure change-detection and merge-planning logic for
// type 2 slowly changing dimensions. It never touches a store: callers feed it
// deduplicated candidates and the live current rows, it hands back a MergePlan.
package scd2

import (
	"time"

	"strata/internal/core/recordhash"
)

// OpenExpiry is the sentinel expiry for current rows
var OpenExpiry = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Candidate is one incoming record after per-row schema validation
type Candidate struct {
	EntityID           string
	SourceLastModified time.Time
	Fields             map[string]any
}

// CurrentRow is the live is_current=true row for an entity.
// RowID and Fields ride along so a Close can rewrite the row verbatim.
type CurrentRow struct {
	EntityID           string
	RecordHash         string
	SourceLastModified time.Time
	EffectiveDate      time.Time
	RowID              string
	RowVersion         uint64
	Fields             map[string]any
}

// NewEntity pairs a candidate with its computed digest
type NewEntity struct {
	Candidate Candidate
	Hash      string
}

// Change pairs a candidate with the current row it supersedes
type Change struct {
	Candidate Candidate
	Hash      string
	Current   CurrentRow
}

// Classified is the change detector's three-way split
type Classified struct {
	New       []NewEntity
	Changed   []Change
	Unchanged int
}

// Dedup keeps one candidate per entity id. The row with the greatest
// SourceLastModified wins; on an exact timestamp tie the later occurrence in
// input order wins. Output preserves the input order of the surviving rows.
func Dedup(in []Candidate) []Candidate {
	if len(in) <= 1 {
		return in
	}

	best := make(map[string]int, len(in)) // entity id -> index into in
	order := make([]string, 0, len(in))

	for i, c := range in {
		prev, seen := best[c.EntityID]
		if !seen {
			best[c.EntityID] = i
			order = append(order, c.EntityID)
			continue
		}
		if !c.SourceLastModified.Before(in[prev].SourceLastModified) {
			best[c.EntityID] = i
		}
	}

	out := make([]Candidate, 0, len(order))
	for _, id := range order {
		out = append(out, in[best[id]])
	}
	return out
}

// Classify joins candidates against the live current rows by entity id.
// Unchanged rows (identical digest) are counted and dropped from the plan,
// regardless of how fresh their SourceLastModified is.
func Classify(cands []Candidate, live []CurrentRow) Classified {
	byID := make(map[string]CurrentRow, len(live))
	for _, row := range live {
		byID[row.EntityID] = row
	}

	var cl Classified
	for _, c := range cands {
		h := recordhash.Hash(c.Fields)
		cur, ok := byID[c.EntityID]
		switch {
		case !ok:
			cl.New = append(cl.New, NewEntity{Candidate: c, Hash: h})
		case cur.RecordHash != h:
			cl.Changed = append(cl.Changed, Change{Candidate: c, Hash: h, Current: cur})
		default:
			cl.Unchanged++
		}
	}
	return cl
}
