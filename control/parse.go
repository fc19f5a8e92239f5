package control

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"pulsegen/core"
)

// MaxBodyBytes bounds an update body; bodies this long or longer are refused
const MaxBodyBytes = 512

// Form field names of an update
const (
	FieldPulses      = "pulses"
	FieldRPM         = "rpm"
	FieldPulsePct    = "pulse_pct"
	FieldEnabled     = "enabled"
	FieldFastFreq    = "fast_freq"
	FieldFastPct     = "fast_pct"
	FieldFastEnabled = "fast_enabled"
)

// Parse errors, reported to the client as the error message
const (
	ErrEmptyBody     = core.Error("empty body")
	ErrBodyTooLarge  = core.Error("body too large")
	ErrMalformedBody = core.Error("malformed body")
	ErrInvalidRPM    = core.Error("invalid rpm")
)

// ParseUpdate decodes a form-encoded update. Fields that are absent keep
// their value from prior, except pulses and pulse_pct which fall back to 1
// and 10. Unknown fields are ignored. Numbers are read leniently: a value
// with no leading number counts as zero.
func ParseUpdate(body []byte, prior core.Snapshot) (core.Update, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return core.Update{}, ErrEmptyBody
	}
	if len(body) >= MaxBodyBytes {
		return core.Update{}, ErrBodyTooLarge
	}

	u := core.Update{
		PulsesPerRev: core.DefaultPulsesPerRev,
		RPM:          prior.Timing.RPM,
		PulsePct:     core.DefaultPulsePct,
		Enabled:      prior.Timing.Enabled,
		Fast:         prior.Fast,
	}

	pairs := 0
	for _, pair := range strings.Split(string(body), "&") {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		pairs++
		key = unescape(key)
		val = unescape(val)
		switch key {
		case FieldPulses:
			u.PulsesPerRev = atoi(val)
		case FieldRPM:
			u.RPM = atof(val)
		case FieldPulsePct:
			u.PulsePct = atoi(val)
		case FieldEnabled:
			u.Enabled = atoi(val) != 0
		case FieldFastFreq:
			u.Fast.FreqHz = atof(val)
		case FieldFastPct:
			u.Fast.DutyPct = atoi(val)
		case FieldFastEnabled:
			u.Fast.Enabled = atoi(val) != 0
		}
	}
	if pairs == 0 {
		return core.Update{}, ErrMalformedBody
	}
	return u, nil
}

// unescape decodes form escaping, keeping the raw text when it is malformed
func unescape(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}

// atoi reads an optional sign and the leading decimal digits of s
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			if strings.HasPrefix(s, "-") {
				return -1 << 31
			}
			return 1<<31 - 1
		}
		return 0
	}
	return n
}

// atof reads the longest leading decimal number of s
func atof(s string) float64 {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
	}
	return 0
}
