package drivers

import (
	"testing"

	"github.com/pkg/errors"
)

func assertPosition(t testing.TB, qc *QuadratureCounter, expected int64) {
	t.Helper()

	position, err := qc.Position()
	if err != nil {
		t.Fatalf("Position returned err: %v", err)
	}
	if position != expected {
		t.Errorf("position = %d, expected %d", position, expected)
	}
}

func TestQuadratureForward(t *testing.T) {
	a := &MockInput{}
	b := &MockInput{}
	qc := NewQuadratureCounter(a, b)

	// first sample only primes the state
	assertPosition(t, qc, 0)

	// gray sequence 00 -> 01 -> 11 -> 10 -> 00, one full detent cycle
	steps := [][2]bool{
		{false, true},
		{true, true},
		{true, false},
		{false, false},
	}
	for count, step := range steps {
		a.State, b.State = step[0], step[1]
		assertPosition(t, qc, int64(count)+1)
	}
}

func TestQuadratureBackward(t *testing.T) {
	a := &MockInput{}
	b := &MockInput{}
	qc := NewQuadratureCounter(a, b)

	assertPosition(t, qc, 0)

	steps := [][2]bool{
		{true, false},
		{true, true},
		{false, true},
		{false, false},
	}
	for count, step := range steps {
		a.State, b.State = step[0], step[1]
		assertPosition(t, qc, -int64(count)-1)
	}
}

func TestQuadratureNoMovement(t *testing.T) {
	a := &MockInput{State: true}
	b := &MockInput{}
	qc := NewQuadratureCounter(a, b)

	assertPosition(t, qc, 0)
	assertPosition(t, qc, 0)
	assertPosition(t, qc, 0)
}

func TestQuadratureInvalidTransition(t *testing.T) {
	a := &MockInput{}
	b := &MockInput{}
	qc := NewQuadratureCounter(a, b)

	assertPosition(t, qc, 0)

	// both lines flipping between samples is a missed transition
	a.State, b.State = true, true
	assertPosition(t, qc, 0)

	// movement resumes from the new state
	b.State = false
	assertPosition(t, qc, 1)
}

type brokenInput struct{}

func (bi *brokenInput) GetState() (bool, error) {
	return false, errors.New("line fault")
}

func TestQuadratureSampleError(t *testing.T) {
	qc := NewQuadratureCounter(&brokenInput{}, &MockInput{})

	_, err := qc.Position()
	if err == nil {
		t.Error("expected error from failing line")
	}
}
