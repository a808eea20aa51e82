// Package cut implements the sample admission policy applied before
// histogram accumulation.
package cut

import (
	"math"

	"github.com/xtxerr/tfcalib/config"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

// Acceptor decides whether a sample contributes to any histogram.
type Acceptor interface {
	Accepts(s types.Sample) bool
}

// Options configures a Policy.
type Options struct {
	Enabled     bool
	MinMomentum float64
	MaxMomentum float64
	MinClusters int32
}

// DefaultOptions returns the momentum and cluster window used for
// minimum-ionizing tracks.
func DefaultOptions() Options {
	return Options{
		Enabled:     true,
		MinMomentum: config.DefaultMinMomentum,
		MaxMomentum: config.DefaultMaxMomentum,
		MinClusters: config.DefaultMinClusters,
	}
}

// Validate checks the cut window. Ranges are checked even when the
// policy is disabled so that enabling it later cannot surface a bad config.
func (o Options) Validate() error {
	var errs []error

	if math.IsNaN(o.MinMomentum) || math.IsNaN(o.MaxMomentum) {
		errs = append(errs, errors.NewValidation("cuts.momentum", "must be a number"))
	} else if o.MinMomentum >= o.MaxMomentum {
		errs = append(errs, errors.NewInvalidValue("cuts.min_momentum", o.MinMomentum, "must be < cuts.max_momentum"))
	}

	if o.MinClusters < 0 {
		errs = append(errs, errors.NewInvalidValue("cuts.min_clusters", o.MinClusters, "must be non-negative"))
	}

	return errors.Join(errs...)
}

// Policy admits samples inside the open momentum window that carry at
// least MinClusters clusters. Both conditions must hold.
type Policy struct {
	opts Options
}

// New creates a policy after validating opts.
func New(opts Options) (*Policy, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Policy{opts: opts}, nil
}

// Disabled returns a policy that admits every sample.
func Disabled() *Policy {
	opts := DefaultOptions()
	opts.Enabled = false
	return &Policy{opts: opts}
}

// Accepts reports whether s passes the cut.
func (p *Policy) Accepts(s types.Sample) bool {
	if !p.opts.Enabled {
		return true
	}
	return s.Momentum > p.opts.MinMomentum &&
		s.Momentum < p.opts.MaxMomentum &&
		s.ClusterCount >= p.opts.MinClusters
}

// Filter returns the accepted subset of samples in their original order.
// The input slice is not modified.
func (p *Policy) Filter(samples []types.Sample) []types.Sample {
	out := make([]types.Sample, 0, len(samples))
	for i := range samples {
		if p.Accepts(samples[i]) {
			out = append(out, samples[i])
		}
	}
	return out
}

// Enabled returns whether the cut is applied.
func (p *Policy) Enabled() bool {
	return p.opts.Enabled
}

// Options returns the policy configuration.
func (p *Policy) Options() Options {
	return p.opts
}
