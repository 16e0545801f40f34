// Package staging derives collision-free staging table names.
// Two invocations started within the same millisecond must never share a
// name, so the identifier combines the caller's microsecond timestamp with a
// random uuid fragment. A collision at the store is therefore a defect signal
// and never retried blindly.
package staging

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// table names are interpolated into DDL, keep them boring
var namePat = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidName reports whether s is safe to use as a logical table name
func ValidName(s string) bool { return namePat.MatchString(s) }

// NewID derives the unique staging identifier from the invocation timestamp
func NewID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d_%s", at.UTC().UnixMicro(), suffix)
}

// TableName builds the full staging table name for a logical table
func TableName(table, id string) string {
	return fmt.Sprintf("staging_%s_%s", table, id)
}
