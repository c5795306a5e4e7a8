package spn

// Options configures evaluation, sampling and learning behavior. A zero
// Options is not usable; start from DefaultOptions and override fields.
type Options struct {
	// CheckSupport controls whether observed values are validated against
	// each leaf distribution's support during evaluation and learning.
	// Disabling it means numerical behavior outside support is undefined.
	CheckSupport bool

	// Backend selects the numeric backend for evaluation results.
	// Defaults to the plain dense array backend.
	Backend Backend

	// Logger receives engine diagnostics. Defaults to a noop logger.
	Logger Logger

	// Seed seeds the random source used for sampling. Zero draws a seed
	// from the clock.
	Seed uint64

	// Numeric clamps used by the learning routines. The exact values are
	// configuration, not semantics; they keep estimates away from degenerate
	// boundaries.
	MinStdDev   float64 // lower bound for estimated standard deviations
	ProbEpsilon float64 // keeps estimated probabilities inside (0, 1)

	// Gamma shape estimation iteration controls.
	GammaTol     float64
	GammaMaxIter int
}

// DefaultOptions returns the default engine configuration.
func DefaultOptions() Options {
	return Options{
		CheckSupport: true,
		Backend:      NewDenseBackend(),
		Logger:       NewNoopLogger(),
		Seed:         0,
		MinStdDev:    1e-8,
		ProbEpsilon:  1e-8,
		GammaTol:     1e-6,
		GammaMaxIter: 100,
	}
}

func (o Options) withDefaults() Options {
	if o.Backend == nil {
		o.Backend = NewDenseBackend()
	}
	if o.Logger == nil {
		o.Logger = NewNoopLogger()
	}
	if o.GammaTol <= 0 {
		o.GammaTol = 1e-6
	}
	if o.GammaMaxIter <= 0 {
		o.GammaMaxIter = 100
	}
	return o
}
