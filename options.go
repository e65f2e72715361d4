package machgen

// OptLevel selects how aggressively ir.RunPasses optimizes before
// legalization and lowering. The pipeline itself doesn't change shape
// between levels today (every pass in ir.RunPasses always runs); OptNone
// exists so a caller compiling many tiny functions (a JIT tier-up path)
// can ask for the cheapest possible compile once pass selection becomes
// granular, without another Options field.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptDefault
	OptAggressive
)

// Options configures one Compile call. The zero value is a valid,
// conservative configuration: no IR verification, no trap-site
// recording, no stack limit, and OptLevel OptNone (every level runs the
// same passes).
//
// Grounded on wazero's functional-options RuntimeConfig builder: Options
// is built via With* functions over a value receiver rather than direct
// field assignment, so new fields can be added without breaking callers
// who only used the option constructors.
type Options struct {
	OptLevel         OptLevel
	VerifyIR         bool
	EnableProbestack bool
	EmitTraps        bool
	StackLimit       uint32
}

// Option mutates an Options value; NewOptions folds a list of them over
// the zero value.
type Option func(*Options)

// NewOptions builds an Options from a list of functional options, the
// same pattern wazero.NewRuntimeConfig uses.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithOptLevel sets the optimization level.
func WithOptLevel(level OptLevel) Option {
	return func(o *Options) { o.OptLevel = level }
}

// WithVerifyIR runs ir.Verify on the input function before legalization,
// turning a malformed-IR bug into a *VerificationError instead of a
// panic deep in lowering.
func WithVerifyIR(v bool) Option {
	return func(o *Options) { o.VerifyIR = v }
}

// WithProbestack sets EnableProbestack. No backend reads the flag: no
// stack probe is emitted in any prologue.
func WithProbestack(v bool) Option {
	return func(o *Options) { o.EnableProbestack = v }
}

// WithTraps enables trap-site recording (Result.Traps): one site per
// explicit Trap instruction. A faulting integer divide records none.
func WithTraps(v bool) Option {
	return func(o *Options) { o.EmitTraps = v }
}

// WithStackLimit sets the maximum stack frame size, in bytes, a compiled
// function may use before Compile refuses to emit it. Zero means no
// limit.
func WithStackLimit(n uint32) Option {
	return func(o *Options) { o.StackLimit = n }
}
