package scd2

import "time"

// Insert is a current row to publish. An empty RowID means a brand new row;
// a set RowID makes it a higher-version rewrite of an existing row at the
// same (entity, effective date) key.
type Insert struct {
	EntityID           string
	RecordHash         string
	SourceLastModified time.Time
	EffectiveDate      time.Time
	ExpiryDate         time.Time
	Fields             map[string]any
	RowID              string
	RowVersion         uint64
}

// Close rewrites an existing current row as closed. The store publishes it as
// a higher-version copy of Row with is_current false and ExpiryDate set.
type Close struct {
	Row        CurrentRow
	ExpiryDate time.Time
}

// MergePlan is the full set of operations one commit must publish atomically.
// A changed entity contributes exactly one Close and one Insert pair.
type MergePlan struct {
	Inserts []Insert
	Closes  []Close
}

// Empty reports whether the plan carries no work
func (p MergePlan) Empty() bool { return len(p.Inserts) == 0 && len(p.Closes) == 0 }

// BuildPlan turns a classification into the row operations to publish.
// New entities open at their SourceLastModified. Changed entities close the
// old row at the new effective date and open the replacement there, unless
// the new effective date does not move past the live row's: then both rows
// would land on the same (entity, effective date) key and the versioned
// store keeps only the highest version, so the plan emits a single in-place
// rewrite of the live row instead of a close pair.
func BuildPlan(cl Classified) MergePlan {
	var p MergePlan

	for _, n := range cl.New {
		p.Inserts = append(p.Inserts, Insert{
			EntityID:           n.Candidate.EntityID,
			RecordHash:         n.Hash,
			SourceLastModified: n.Candidate.SourceLastModified,
			EffectiveDate:      n.Candidate.SourceLastModified,
			ExpiryDate:         OpenExpiry,
			Fields:             n.Candidate.Fields,
			RowVersion:         1,
		})
	}

	for _, ch := range cl.Changed {
		effective := ch.Candidate.SourceLastModified
		if !effective.After(ch.Current.EffectiveDate) {
			p.Inserts = append(p.Inserts, Insert{
				EntityID:           ch.Candidate.EntityID,
				RecordHash:         ch.Hash,
				SourceLastModified: ch.Candidate.SourceLastModified,
				EffectiveDate:      ch.Current.EffectiveDate,
				ExpiryDate:         OpenExpiry,
				Fields:             ch.Candidate.Fields,
				RowID:              ch.Current.RowID,
				RowVersion:         ch.Current.RowVersion + 1,
			})
			continue
		}
		p.Closes = append(p.Closes, Close{
			Row:        ch.Current,
			ExpiryDate: effective,
		})
		p.Inserts = append(p.Inserts, Insert{
			EntityID:           ch.Candidate.EntityID,
			RecordHash:         ch.Hash,
			SourceLastModified: ch.Candidate.SourceLastModified,
			EffectiveDate:      effective,
			ExpiryDate:         OpenExpiry,
			Fields:             ch.Candidate.Fields,
			RowVersion:         1,
		})
	}

	return p
}
