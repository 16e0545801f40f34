package module

import "strata/internal/platform/config"

// Options holds configuration options for the reconciliation engine
type Options struct {
	BatchLimit  int
	SampleLimit int
}

// FromConfig reads the reconcile options from config with STRATA_RECONCILE_ prefix
func FromConfig(cfg config.Conf) Options {
	rc := cfg.Prefix("STRATA_RECONCILE_")
	return Options{
		BatchLimit:  rc.MayInt("BATCH_LIMIT", 500),
		SampleLimit: rc.MayInt("SAMPLE_LIMIT", 5),
	}
}
