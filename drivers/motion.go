package drivers

import (
	"github.com/pkg/errors"
)

// quadSteps maps (previous state << 2 | current state) of the two encoder
// lines (A<<1 | B) to a position step. Invalid double transitions count as
// zero movement.
var quadSteps = [16]int64{
	0, +1, -1, 0,
	-1, 0, 0, +1,
	+1, 0, 0, -1,
	0, -1, +1, 0,
}

// QuadratureCounter accumulates relative motion from a two line quadrature
// encoder by sampling both lines on every Position call. Sampling has to be
// driven fast enough to catch each transition; the poll loop's tick rate
// bounds the usable rotation speed.
type QuadratureCounter struct {
	a DigitalInput
	b DigitalInput

	primed    bool
	prevState uint8
	position  int64
}

func NewQuadratureCounter(a DigitalInput, b DigitalInput) *QuadratureCounter {
	return &QuadratureCounter{a: a, b: b}
}

func (qc *QuadratureCounter) sample() (state uint8, err error) {
	a, err := qc.a.GetState()
	if err != nil {
		return
	}
	b, err := qc.b.GetState()
	if err != nil {
		return
	}

	if a {
		state |= 2
	}
	if b {
		state |= 1
	}
	return
}

func (qc *QuadratureCounter) Position() (int64, error) {
	state, err := qc.sample()
	if err != nil {
		return qc.position, errors.Wrap(err, "quadrature sampling failed")
	}

	if !qc.primed {
		qc.primed = true
		qc.prevState = state
		return qc.position, nil
	}

	qc.position += quadSteps[qc.prevState<<2|state]
	qc.prevState = state

	return qc.position, nil
}
