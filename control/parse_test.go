package control

import (
	"strings"
	"testing"

	"pulsegen/core"
)

func priorSnapshot() core.Snapshot {
	s := core.Snapshot{
		Timing: core.DefaultTimingParameters(),
		Fast:   core.FastChannelParams{FreqHz: 2500, DutyPct: 40, Enabled: true},
	}
	s.Timing.RPM = 90
	s.Timing.Enabled = true
	return s
}

func TestParseUpdateFull(t *testing.T) {
	body := "pulses=2&rpm=120&pulse_pct=25&enabled=1&fast_freq=5000&fast_pct=20&fast_enabled=0"
	u, err := ParseUpdate([]byte(body), priorSnapshot())
	if err != nil {
		t.Fatalf("ParseUpdate failed: %v", err)
	}
	want := core.Update{
		PulsesPerRev: 2,
		RPM:          120,
		PulsePct:     25,
		Enabled:      true,
		Fast:         core.FastChannelParams{FreqHz: 5000, DutyPct: 20, Enabled: false},
	}
	if u != want {
		t.Errorf("got %+v, want %+v", u, want)
	}
}

func TestParseUpdateMissingFields(t *testing.T) {
	prior := priorSnapshot()
	u, err := ParseUpdate([]byte("unknown=7&pulse_pct"), prior)
	if err != nil {
		t.Fatalf("ParseUpdate failed: %v", err)
	}
	if u.PulsesPerRev != 1 || u.PulsePct != 10 {
		t.Errorf("pulses/pct = %d/%d, want 1/10", u.PulsesPerRev, u.PulsePct)
	}
	if u.RPM != prior.Timing.RPM || u.Enabled != prior.Timing.Enabled || u.Fast != prior.Fast {
		t.Errorf("missing fields did not keep prior values: %+v", u)
	}
}

func TestParseUpdateLenientNumbers(t *testing.T) {
	tests := []struct {
		body   string
		pulses int
		rpm    float64
	}{
		{"pulses=3abc&rpm=45.5rpm", 3, 45.5},
		{"pulses=+4&rpm=%2060", 4, 60},
		{"pulses=x&rpm=", 0, 0},
		{"pulses=-2&rpm=1e2", -2, 100},
		{"rpm=12.5.7&pulses=%35", 5, 12.5},
	}
	for _, tt := range tests {
		u, err := ParseUpdate([]byte(tt.body), priorSnapshot())
		if err != nil {
			t.Fatalf("%q: %v", tt.body, err)
		}
		if u.PulsesPerRev != tt.pulses || u.RPM != tt.rpm {
			t.Errorf("%q: pulses/rpm = %d/%v, want %d/%v", tt.body, u.PulsesPerRev, u.RPM, tt.pulses, tt.rpm)
		}
	}
}

func TestParseUpdateRejects(t *testing.T) {
	tests := []struct {
		body string
		want error
	}{
		{"", ErrEmptyBody},
		{"  \r\n", ErrEmptyBody},
		{"rpm=1&" + strings.Repeat("x", MaxBodyBytes), ErrBodyTooLarge},
		{"garbage", ErrMalformedBody},
	}
	for _, tt := range tests {
		if _, err := ParseUpdate([]byte(tt.body), priorSnapshot()); err != tt.want {
			t.Errorf("%.20q: got %v, want %v", tt.body, err, tt.want)
		}
	}
}

func TestParseUpdateBodyLimit(t *testing.T) {
	base := "rpm=60&pad="
	body := base + strings.Repeat("a", MaxBodyBytes-1-len(base))
	if _, err := ParseUpdate([]byte(body), priorSnapshot()); err != nil {
		t.Errorf("%d byte body rejected: %v", len(body), err)
	}
	if _, err := ParseUpdate([]byte(body+"a"), priorSnapshot()); err != ErrBodyTooLarge {
		t.Errorf("%d byte body: got %v, want ErrBodyTooLarge", len(body)+1, err)
	}
}
