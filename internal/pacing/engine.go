package pacing

import (
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// punctuation that earns the τ pause after it.
const pauseRunes = ".!?;:,…\n"

// BaseDelay is the pure rhythm function d(n) in milliseconds for every
// model except Markov, which needs state and is handled by Session.
func BaseDelay(p Params, n int) float64 {
	x := float64(n)
	switch p.Model {
	case ModelExponential:
		return p.MinMs + (p.MaxMs-p.MinMs)*math.Exp(-p.Lambda*x)
	case ModelSine:
		if p.Period == 0 {
			return p.BaseMs
		}
		return p.BaseMs + p.Amplitude*math.Sin(2*math.Pi*x/p.Period+p.Phase)
	case ModelDamped:
		return p.BaseMs + p.Amplitude*math.Exp(-p.Damping*x)*math.Cos(p.Omega*x+p.Phase)
	case ModelSquare:
		if math.Sin(p.Omega*x) >= 0 {
			return p.BaseMs + p.Amplitude
		}
		return p.BaseMs - p.Amplitude
	case ModelMarkov:
		return p.BaseMs
	default:
		return p.BaseMs
	}
}

// Finish applies punctuation pause, jitter and the floor/ceiling clamp to a
// base delay. jitter is a standard normal sample; it is scaled by
// JitterSigma and clamped to ±3σ.
func Finish(p Params, base float64, lastChar rune, jitter float64) float64 {
	d := base
	if lastChar != 0 && strings.ContainsRune(pauseRunes, lastChar) {
		d *= p.PunctuationPause
	}
	if p.JitterSigma > 0 {
		d += clamp(jitter, -3, 3) * p.JitterSigma
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		d = DefaultDelayMs
	}
	return clamp(d, p.FloorMs, p.CeilingMs)
}

// Session carries the random state of one rendered response. It is not
// safe for concurrent use.
type Session struct {
	params Params
	rng    *rand.Rand

	prev    float64
	started bool
}

// NewSession starts a render session. Params are normalized.
func NewSession(p Params, seed uint64) *Session {
	s := &Session{params: p.Normalize()}
	s.Reseed(seed)
	return s
}

// Reseed resets the random state and the Markov walk. Called at the start
// of each response.
func (s *Session) Reseed(seed uint64) {
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s.prev = s.params.BaseMs
	s.started = false
}

// Params returns the normalized parameters.
func (s *Session) Params() Params {
	return s.params
}

// DelayMs returns the delay in milliseconds before rendering the character
// after position n, given the character just rendered.
func (s *Session) DelayMs(n int, lastChar rune) float64 {
	p := s.params
	var base float64
	if p.Model == ModelMarkov {
		base = s.markov()
	} else {
		base = BaseDelay(p, n)
	}

	var jitter float64
	if p.JitterSigma > 0 {
		jitter = s.rng.NormFloat64()
	}
	return Finish(p, base, lastChar, jitter)
}

// Delay is DelayMs as a time.Duration.
func (s *Session) Delay(n int, lastChar rune) time.Duration {
	return time.Duration(s.DelayMs(n, lastChar) * float64(time.Millisecond))
}

// markov advances the AR(1) walk. A think pause snaps the output to MaxMs
// without moving the walk.
func (s *Session) markov() float64 {
	p := s.params
	if !s.started {
		s.started = true
		s.prev = p.BaseMs
	}
	d := p.BaseMs + p.Rho*(s.prev-p.BaseMs) + p.Sigma*s.rng.NormFloat64()
	d = clamp(d, p.MinMs, p.MaxMs)
	s.prev = d

	if p.ThinkProb > 0 && s.rng.Float64() < p.ThinkProb {
		return p.MaxMs
	}
	return d
}
