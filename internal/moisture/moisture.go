// Package moisture provides placeholder soil-moisture readings. Neither
// source samples real hardware.
package moisture

import (
	"fmt"
	"math/rand"
)

// Max is the exclusive upper bound of every reading.
const Max = 100

// Source modes accepted by NewSource.
const (
	ModeSawtooth = "sawtooth"
	ModeRandom   = "random"
)

// Source yields one reading per tick.
type Source interface {
	// Current returns the reading for this tick.
	Current() int
	// Advance moves to the next tick's reading.
	Advance()
}

// NewSource returns the source for mode.
func NewSource(mode string) (Source, error) {
	switch mode {
	case "", ModeSawtooth:
		return &Sawtooth{}, nil
	case ModeRandom:
		return NewRandom(), nil
	default:
		return nil, fmt.Errorf("moisture: unknown mode %q", mode)
	}
}

// Sawtooth counts 0, 1, ..., 99, 0, ... and never yields Max.
// The zero value starts at 0.
type Sawtooth struct {
	value int
}

func (s *Sawtooth) Current() int { return s.value }

func (s *Sawtooth) Advance() {
	s.value++
	if s.value >= Max {
		s.value = 0
	}
}

// Random draws a fresh value in [0, Max) on every Advance. The sequence is
// unseeded and not reproducible.
type Random struct {
	value int
}

// NewRandom returns a Random with its first value already drawn.
func NewRandom() *Random {
	return &Random{value: rand.Intn(Max)}
}

func (r *Random) Current() int { return r.value }

func (r *Random) Advance() { r.value = rand.Intn(Max) }

// Compile-time interface checks.
var (
	_ Source = (*Sawtooth)(nil)
	_ Source = (*Random)(nil)
)
