package config

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/opsward/geryon/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Dedup holds CLI flags for the deduplication engine
type Dedup struct {
	threshold        float64
	serializeCreates bool
}

// Flags returns CLI flags for dedup configuration
func (d *Dedup) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.FloatFlag{
			Name:        "duplication-threshold",
			Usage:       "Cosine similarity above which a report is chained to an existing issue. Raising it reduces false-positive merges; lowering it reduces duplicate issue creation",
			Value:       usecase.DefaultDuplicationThreshold,
			Sources:     cli.EnvVars("GERYON_DUPLICATION_THRESHOLD"),
			Destination: &d.threshold,
		},
		&cli.BoolFlag{
			Name:        "serialize-creates",
			Usage:       "Serialize read-decide-write per category to prevent duplicate issue creation under concurrent submissions (single instance only)",
			Value:       true,
			Sources:     cli.EnvVars("GERYON_SERIALIZE_CREATES"),
			Destination: &d.serializeCreates,
		},
	}
}

// Validate checks the threshold is inside the cosine similarity range
func (d *Dedup) Validate() error {
	if d.threshold < -1 || d.threshold > 1 {
		return goerr.Wrap(ErrInvalidThreshold, "threshold must be within [-1, 1]",
			goerr.V("threshold", d.threshold))
	}
	return nil
}

// Threshold returns the configured duplication threshold
func (d *Dedup) Threshold() float64 {
	return d.threshold
}

// SerializeCreates reports whether per-category create serialization is enabled
func (d *Dedup) SerializeCreates() bool {
	return d.serializeCreates
}
