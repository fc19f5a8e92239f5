package core

import "math"

// Slow channel parameter bounds
const (
	MinPulsesPerRev = 1
	MaxPulsesPerRev = 10
	MinPulsePct     = 1
	MaxPulsePct     = 99
	MaxRPM          = 1000.0

	// MinPeriodUs keeps room for at least one tick high and one tick low
	MinPeriodUs = 2
	// MaxPeriodUs caps the period of a vanishingly small RPM so the pulse and
	// pause split stays exact in float64
	MaxPeriodUs = 1 << 52
)

// Boot defaults for the slow channel
const (
	DefaultPulseUs      = 100000
	DefaultPauseUs      = 900000
	DefaultPulsesPerRev = 1
	DefaultRPM          = 60.0
	DefaultPulsePct     = 10
)

// TimingParameters describes one validated slow channel configuration.
// PulseUs + PauseUs is always the period in microseconds.
type TimingParameters struct {
	PulsesPerRev int
	PulseUs      uint64
	PauseUs      uint64
	PulsePct     int
	RPM          float64
	FreqHz       float64
	Enabled      bool
}

// PeriodUs returns the full pulse+pause period in microseconds
func (t TimingParameters) PeriodUs() uint64 {
	return t.PulseUs + t.PauseUs
}

// DefaultTimingParameters returns the boot configuration (output disabled)
func DefaultTimingParameters() TimingParameters {
	return TimingParameters{
		PulsesPerRev: DefaultPulsesPerRev,
		PulseUs:      DefaultPulseUs,
		PauseUs:      DefaultPauseUs,
		PulsePct:     DefaultPulsePct,
		RPM:          DefaultRPM,
		FreqHz:       DefaultRPM / 60.0 * DefaultPulsesPerRev,
		Enabled:      false,
	}
}

// ComputeTiming turns a rotational speed description into pulse and pause
// durations. Out-of-range pulse counts and percentages are clamped, RPM above
// MaxRPM is clamped, and a non-positive RPM fails with ErrInvalidTiming.
//
// Rounding is half away from zero (math.Round) so boundary values match the
// reference firmware tick for tick.
func ComputeTiming(pulsesPerRev int, rpm float64, pulsePct int) (TimingParameters, error) {
	pulsesPerRev = clampInt(pulsesPerRev, MinPulsesPerRev, MaxPulsesPerRev)
	pulsePct = clampInt(pulsePct, MinPulsePct, MaxPulsePct)

	// NaN fails this comparison too
	if !(rpm > 0) {
		return TimingParameters{}, ErrInvalidTiming
	}
	if rpm > MaxRPM {
		rpm = MaxRPM
	}

	freqHz := (rpm / 60.0) * float64(pulsesPerRev)
	if !(freqHz > 0) {
		return TimingParameters{}, ErrInvalidTiming
	}

	periodExact := 1000000.0 / freqHz
	if periodExact > MaxPeriodUs {
		periodExact = MaxPeriodUs
	}
	period := roundUs(periodExact)
	if period < MinPeriodUs {
		period = MinPeriodUs
	}

	pulse := roundUs(periodExact * (float64(pulsePct) / 100.0))
	if pulse < 1 {
		pulse = 1
	}
	if pulse >= period {
		pulse = period - 1
	}

	return TimingParameters{
		PulsesPerRev: pulsesPerRev,
		PulseUs:      pulse,
		PauseUs:      period - pulse,
		PulsePct:     pulsePct,
		RPM:          rpm,
		FreqHz:       freqHz,
	}, nil
}

// roundUs rounds a non-negative microsecond value half away from zero,
// saturating instead of overflowing.
func roundUs(v float64) uint64 {
	r := math.Round(v)
	if r >= math.MaxUint64 {
		return math.MaxUint64
	}
	if r <= 0 {
		return 0
	}
	return uint64(r)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
