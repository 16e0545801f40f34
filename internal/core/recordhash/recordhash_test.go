package recordhash

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHash_Deterministic(t *testing.T) {
	t.Parallel()

	a := map[string]any{"name": "alice", "age": 30, "active": true}
	b := map[string]any{"active": true, "age": 30, "name": "alice"}

	if Hash(a) != Hash(b) {
		t.Fatalf("key order changed the digest\n%s\n%s", Canonical(a), Canonical(b))
	}
}

func TestHash_IgnoresBookkeepingFields(t *testing.T) {
	t.Parallel()

	bare := map[string]any{"name": "alice"}
	decorated := map[string]any{
		"name":           "alice",
		"record_hash":    "deadbeef",
		"effective_date": "2026-01-01",
		"expiry_date":    "9999-12-31",
		"is_current":     true,
		"created_at":     "2026-01-01T00:00:00Z",
		"updated_at":     "2026-01-02T00:00:00Z",
		"row_id":         "abc",
		"row_version":    int64(7),
	}

	if Hash(bare) != Hash(decorated) {
		t.Fatalf("bookkeeping fields leaked into the digest")
	}
}

func TestHash_NumericCoercion(t *testing.T) {
	t.Parallel()

	// json decoders hand back float64, typed sources hand back int
	asInt := map[string]any{"qty": 3}
	asFloat := map[string]any{"qty": float64(3)}
	asNumber := map[string]any{"qty": json.Number("3")}

	h := Hash(asInt)
	if Hash(asFloat) != h {
		t.Fatalf("3 and 3.0 hash differently")
	}
	if Hash(asNumber) != h {
		t.Fatalf("json.Number 3 hashes differently")
	}

	// fractional values must still be distinct
	if Hash(map[string]any{"qty": 3.5}) == h {
		t.Fatalf("3.5 collided with 3")
	}
}

func TestHash_UnicodeNormalization(t *testing.T) {
	t.Parallel()

	// "café" precomposed vs combining acute accent
	pre := map[string]any{"city": "café"}
	comb := map[string]any{"city": "café"}

	if Hash(pre) != Hash(comb) {
		t.Fatalf("NFC folding not applied to values")
	}
}

func TestHash_NullVsEmptyVsMissing(t *testing.T) {
	t.Parallel()

	null := map[string]any{"note": nil}
	empty := map[string]any{"note": ""}
	missing := map[string]any{}

	if Hash(null) == Hash(empty) {
		t.Fatalf("null collided with empty string")
	}
	if Hash(null) == Hash(missing) {
		t.Fatalf("null collided with missing")
	}
	if Hash(empty) == Hash(missing) {
		t.Fatalf("empty collided with missing")
	}
}

func TestHash_NestedStructures(t *testing.T) {
	t.Parallel()

	a := map[string]any{
		"address": map[string]any{"city": "Oslo", "zip": "0150"},
		"tags":    []any{"vip", "2024"},
	}
	b := map[string]any{
		"tags":    []any{"vip", "2024"},
		"address": map[string]any{"zip": "0150", "city": "Oslo"},
	}

	if Hash(a) != Hash(b) {
		t.Fatalf("nested map key order changed the digest")
	}

	// slice order is business meaning and must matter
	c := map[string]any{
		"address": map[string]any{"city": "Oslo", "zip": "0150"},
		"tags":    []any{"2024", "vip"},
	}
	if Hash(a) == Hash(c) {
		t.Fatalf("slice reordering did not change the digest")
	}
}

func TestHash_TimeRendersUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CET", 3600)
	utc := map[string]any{"seen": time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cet := map[string]any{"seen": time.Date(2026, 3, 1, 13, 0, 0, 0, loc)}

	if Hash(utc) != Hash(cet) {
		t.Fatalf("equal instants in different zones hash differently")
	}
}

// A string value carrying quote and delimiter characters must never render
// the same canonical form as a record that genuinely has those boundaries.
func TestHash_StructuralCharactersInStringsDoNotCollide(t *testing.T) {
	t.Parallel()

	smuggled := map[string]any{"a": `1",b="2`}
	honest := map[string]any{"a": "1", "b": "2"}

	if Hash(smuggled) == Hash(honest) {
		t.Fatalf("canonical form not injective\n%s\n%s", Canonical(smuggled), Canonical(honest))
	}

	backslash := map[string]any{"a": `1\`, "b": "2"}
	if Hash(backslash) == Hash(honest) {
		t.Fatalf("backslash escaping collides\n%s\n%s", Canonical(backslash), Canonical(honest))
	}

	trickyKey := map[string]any{`a"=1,"b`: "x"}
	plainKeys := map[string]any{"a": 1, "b": "x"}
	if Hash(trickyKey) == Hash(plainKeys) {
		t.Fatalf("key escaping collides\n%s\n%s", Canonical(trickyKey), Canonical(plainKeys))
	}
}

func TestHash_StableAcrossReserialization(t *testing.T) {
	t.Parallel()

	src := map[string]any{"name": "alice", "qty": float64(3), "nested": map[string]any{"k": "v"}}
	h := Hash(src)

	raw, err := json.Marshal(src)
	if err != nil {
		t.Fatal(err)
	}
	var round map[string]any
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatal(err)
	}

	if Hash(round) != h {
		t.Fatalf("digest changed after a marshal/unmarshal round trip")
	}
}
