// Package recordhash computes a deterministic digest of a record's business fields
// Canonical form rules
// 1 bookkeeping and versioning fields are never hashed
// 2 keys sorted lexicographically at every nesting level
// 3 strings folded to Unicode NFC
// 4 whole-valued floats render as integers so 3 and 3.0 collide
// 5 timestamps render as UTC RFC3339Nano
// 6 nil and missing are distinct from empty string
// 7 keys and string values are quoted with Go escaping, so structural characters inside a string cannot fake a record boundary
// The digest is SHA-256 hex and stable across re-serialization of the same record
package recordhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// bookkeeping fields carried on persisted rows that must never influence the digest
var bookkeeping = map[string]struct{}{
	"record_hash":    {},
	"effective_date": {},
	"expiry_date":    {},
	"is_current":     {},
	"created_at":     {},
	"updated_at":     {},
	"row_id":         {},
	"row_version":    {},
}

// Hash returns the SHA-256 hex digest of the canonical form of fields
func Hash(fields map[string]any) string {
	sum := sha256.Sum256([]byte(Canonical(fields)))
	return hex.EncodeToString(sum[:])
}

// Canonical renders fields into the stable textual form that feeds the digest.
// Exposed so reconciliation can log the form when a stored hash disagrees.
func Canonical(fields map[string]any) string {
	var b strings.Builder
	writeMap(&b, fields, true)
	return b.String()
}

func writeMap(b *strings.Builder, m map[string]any, topLevel bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if topLevel {
			if _, skip := bookkeeping[k]; skip {
				continue
			}
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(norm.NFC.String(k)))
		b.WriteByte('=')
		writeValue(b, m[k])
	}
	b.WriteByte('}')
}

func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case string:
		b.WriteString(strconv.Quote(norm.NFC.String(t)))
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))
	case float32:
		writeFloat(b, float64(t))
	case float64:
		writeFloat(b, t)
	case json.Number:
		writeNumber(b, t)
	case time.Time:
		b.WriteByte('"')
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
		b.WriteByte('"')
	case map[string]any:
		writeMap(b, t, false)
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	case []string:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	default:
		// last resort for exotic source types, still deterministic per type
		fmt.Fprintf(b, "%v", t)
	}
}

// writeFloat renders whole values as integers so decoder type drift cannot
// change the digest (json decodes 3 as float64, a typed source may hand us int)
func writeFloat(b *strings.Builder, f float64) {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1e15 {
		b.WriteString(strconv.FormatInt(int64(f), 10))
		return
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func writeNumber(b *strings.Builder, n json.Number) {
	if i, err := n.Int64(); err == nil {
		b.WriteString(strconv.FormatInt(i, 10))
		return
	}
	if f, err := n.Float64(); err == nil {
		writeFloat(b, f)
		return
	}
	b.WriteString(string(n))
}
