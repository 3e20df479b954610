package calib_test

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/daqio/acquire/calib"
)

func TestPolynomialEvaluation(t *testing.T) {
	// 2 + 3(x-10) + 0.5(x-10)^2 at x=14 -> 2 + 12 + 8 = 22
	p := calib.Polynomial{Origin: 10, Coefficients: []float64{2, 3, 0.5}}
	got := p.ToPhysical(14)
	if math.Abs(got-22) > 1e-12 {
		t.Errorf("expected 22, got %g", got)
	}
}

func TestPolynomialEmptyIsZero(t *testing.T) {
	p := calib.Polynomial{}
	if got := p.ToPhysical(12345); got != 0 {
		t.Errorf("expected 0 from an empty polynomial, got %g", got)
	}
}

func TestLinearRangeEndpoints(t *testing.T) {
	p := calib.LinearRange(-10, 10, math.MaxUint16)
	if got := p.ToPhysical(0); math.Abs(got-(-10)) > 1e-9 {
		t.Errorf("expected code 0 to map to -10, got %g", got)
	}
	if got := p.ToPhysical(math.MaxUint16); math.Abs(got-10) > 1e-9 {
		t.Errorf("expected full code to map to 10, got %g", got)
	}
	if got := p.ToPhysical(math.MaxUint16 / 2); math.Abs(got) > 1e-3 {
		t.Errorf("expected midscale near 0, got %g", got)
	}
}

func ExampleIdentity() {
	var c calib.Converter = calib.Identity{}
	fmt.Println(c.ToPhysical(42))
	// Output: 42
}

// fixedHardcal hands out one polynomial for every channel.
type fixedHardcal struct {
	p   calib.Polynomial
	err error
}

func (f fixedHardcal) HardcalConverter(subdevice, channel, rng int) (calib.Polynomial, error) {
	return f.p, f.err
}

func TestResolveHardware(t *testing.T) {
	hw := fixedHardcal{p: calib.LinearRange(0, 5, math.MaxUint16)}
	conv, err := calib.Resolve(false, hw, "", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := conv.ToPhysical(0); got != 0 {
		t.Errorf("expected 0, got %g", got)
	}
}

func TestResolveWithoutAnySource(t *testing.T) {
	_, err := calib.Resolve(false, nil, "", 0, 0, 0)
	if !errors.Is(err, calib.ErrNoConverter) {
		t.Errorf("expected ErrNoConverter, got %v", err)
	}
}

func TestResolveHardwareFailure(t *testing.T) {
	hw := fixedHardcal{err: errors.New("board said no")}
	_, err := calib.Resolve(false, hw, "", 0, 0, 0)
	if err == nil {
		t.Error("expected the hardware error to propagate")
	}
}
