// Package pacing turns arriving text into a human-cadenced render stream.
// A rhythm model maps the character position to a delay; punctuation
// pauses and Gaussian jitter are layered on top; a prefetch buffer
// decouples render cadence from network jitter.
package pacing

import (
	"fmt"
	"math"
)

// Model names a rhythm model.
type Model string

const (
	ModelConstant    Model = "constant"
	ModelExponential Model = "exponential"
	ModelSine        Model = "sine"
	ModelDamped      Model = "damped"
	ModelSquare      Model = "square"
	ModelMarkov      Model = "markov"
)

// Valid reports whether m is a known model.
func (m Model) Valid() bool {
	switch m {
	case ModelConstant, ModelExponential, ModelSine, ModelDamped, ModelSquare, ModelMarkov:
		return true
	}
	return false
}

// Linear reports whether the model renders at a fixed rate. Linear models
// render without a prefetch buffer.
func (m Model) Linear() bool {
	return m == ModelConstant
}

const (
	// DefaultDelayMs replaces non-finite results.
	DefaultDelayMs = 30.0

	maxThinkProb        = 0.10
	minPunctuationPause = 1.0
	maxPunctuationPause = 6.0
)

// Params is immutable for one render session. All times are milliseconds.
type Params struct {
	Model Model

	// BaseMs is T for constant, Tbase for sine/damped/square and the mean
	// μ for the Markov walk.
	BaseMs float64
	// MinMs and MaxMs are Tmin and Tmax for exponential decay and the
	// clamp range of the Markov walk.
	MinMs float64
	MaxMs float64

	Lambda    float64 // exponential decay rate λ
	Amplitude float64 // A
	Period    float64 // N, characters per sine cycle
	Phase     float64 // φ, radians
	Omega     float64 // ω, radians per character
	Damping   float64 // ζ

	Rho       float64 // AR(1) coefficient ρ
	Sigma     float64 // AR(1) noise σ
	ThinkProb float64 // probability of snapping to MaxMs, 0–0.10

	// PunctuationPause multiplies the delay after sentence or clause
	// punctuation; τ in [1, 6].
	PunctuationPause float64
	// JitterSigma is the global Gaussian jitter, clamped to ±3σ.
	JitterSigma float64

	// FloorMs and CeilingMs bound the final delay.
	FloorMs   float64
	CeilingMs float64

	Prefetch PrefetchParams
}

// PrefetchParams configures the prefetch buffer, in characters.
type PrefetchParams struct {
	Enabled      bool
	StartChars   int
	LowWatermark int
	TopUpTarget  int
}

// DefaultParams returns tuned coefficients for a model.
func DefaultParams(m Model) Params {
	p := Params{
		Model:            m,
		BaseMs:           30,
		MinMs:            28,
		MaxMs:            220,
		Lambda:           0.045,
		Amplitude:        15,
		Period:           24,
		Omega:            0.6,
		Damping:          0.05,
		Rho:              0.7,
		Sigma:            12,
		ThinkProb:        0.02,
		PunctuationPause: 3,
		JitterSigma:      4,
		FloorMs:          4,
		CeilingMs:        1500,
		Prefetch: PrefetchParams{
			Enabled:      true,
			StartChars:   24,
			LowWatermark: 8,
			TopUpTarget:  48,
		},
	}

	switch m {
	case ModelSine:
		p.BaseMs = 45
	case ModelSquare:
		p.BaseMs = 45
		p.Amplitude = 20
		p.Omega = 0.35
	case ModelDamped:
		p.BaseMs = 40
		p.Amplitude = 60
	case ModelMarkov:
		p.BaseMs = 45
		p.MinMs = 15
		p.MaxMs = 160
	case ModelConstant:
		p.Prefetch.Enabled = false
	}
	return p
}

// Normalize clamps coefficients into their documented ranges and enforces
// TopUpTarget >= max(StartChars, LowWatermark).
func (p Params) Normalize() Params {
	if !p.Model.Valid() {
		p.Model = ModelConstant
	}
	p.ThinkProb = clamp(p.ThinkProb, 0, maxThinkProb)
	if p.PunctuationPause == 0 {
		p.PunctuationPause = 1
	}
	p.PunctuationPause = clamp(p.PunctuationPause, minPunctuationPause, maxPunctuationPause)
	if p.JitterSigma < 0 {
		p.JitterSigma = 0
	}
	if p.Sigma < 0 {
		p.Sigma = 0
	}
	if p.MinMs > p.MaxMs {
		p.MinMs, p.MaxMs = p.MaxMs, p.MinMs
	}
	if p.FloorMs < 0 {
		p.FloorMs = 0
	}
	if p.CeilingMs <= 0 || p.CeilingMs < p.FloorMs {
		p.CeilingMs = math.Max(p.FloorMs, 1500)
	}

	pf := &p.Prefetch
	if pf.StartChars < 0 {
		pf.StartChars = 0
	}
	if pf.LowWatermark < 0 {
		pf.LowWatermark = 0
	}
	if floor := max(pf.StartChars, pf.LowWatermark); pf.TopUpTarget < floor {
		pf.TopUpTarget = floor
	}
	return p
}

// Validate reports coefficient problems that Normalize would silently fix.
func (p Params) Validate() error {
	if !p.Model.Valid() {
		return fmt.Errorf("unknown pacing model %q", p.Model)
	}
	if p.ThinkProb < 0 || p.ThinkProb > maxThinkProb {
		return fmt.Errorf("think probability %v outside [0, %v]", p.ThinkProb, maxThinkProb)
	}
	if p.PunctuationPause < minPunctuationPause || p.PunctuationPause > maxPunctuationPause {
		return fmt.Errorf("punctuation pause %v outside [%v, %v]", p.PunctuationPause, minPunctuationPause, maxPunctuationPause)
	}
	if p.Prefetch.TopUpTarget < max(p.Prefetch.StartChars, p.Prefetch.LowWatermark) {
		return fmt.Errorf("prefetch top-up target %d below max(start %d, low watermark %d)",
			p.Prefetch.TopUpTarget, p.Prefetch.StartChars, p.Prefetch.LowWatermark)
	}
	return nil
}

// PrefetchActive reports whether the prefetch buffer applies.
func (p Params) PrefetchActive() bool {
	return p.Prefetch.Enabled && !p.Model.Linear()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
