package domain

import "time"

// GateDecision is the idempotency gate's tagged result
type GateDecision struct {
	Process bool
	Newer   []BatchDescriptor // descriptors strictly newer than the watermark
}

// DecideGate compares descriptors against the committed watermark.
// Every descriptor at or below the watermark is already published, so a batch
// with nothing newer is a clean Skip. Read-only: the watermark advances only
// after a successful commit, which keeps the gate open for retry after a crash.
func DecideGate(watermark time.Time, descs []BatchDescriptor) GateDecision {
	var newer []BatchDescriptor
	for _, d := range descs {
		if d.ModifiedAt.After(watermark) {
			newer = append(newer, d)
		}
	}
	return GateDecision{Process: len(newer) > 0, Newer: newer}
}
