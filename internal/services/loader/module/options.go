package module

import (
	"strings"
	"time"

	"strata/internal/platform/config"
)

// Options holds configuration options for the loader service
type Options struct {
	Workers        int
	MaxRetries     int
	RetryBase      time.Duration
	BatchTimeout   time.Duration
	StageTimeout   time.Duration
	CommitTimeout  time.Duration
	DBTimeout      time.Duration
	EnableLeases   bool
	LeaseTTL       time.Duration
	RequiredFields []string
}

// FromConfig reads the loader options from config with STRATA_LOADER_ prefix
func FromConfig(cfg config.Conf) Options {
	ld := cfg.Prefix("STRATA_LOADER_")
	return Options{
		Workers:        ld.MayInt("WORKERS", 4),
		MaxRetries:     ld.MayInt("RETRIES", 3),
		RetryBase:      ld.MayDuration("RETRY_BASE", 500*time.Millisecond),
		BatchTimeout:   ld.MayDuration("BATCH_TIMEOUT", 0),
		StageTimeout:   ld.MayDuration("STAGE_TIMEOUT", 5*time.Minute),
		CommitTimeout:  ld.MayDuration("COMMIT_TIMEOUT", 5*time.Minute),
		DBTimeout:      ld.MayDuration("DB_TIMEOUT", 30*time.Second),
		EnableLeases:   ld.MayBool("LEASES", false),
		LeaseTTL:       ld.MayDuration("LEASE_TTL", 5*time.Minute),
		RequiredFields: splitFields(ld.MayString("REQUIRED_FIELDS", "")),
	}
}

func splitFields(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
