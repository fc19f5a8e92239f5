package control

import (
	"strconv"

	"pulsegen/core"
)

// Fixed is a float encoded in JSON with a fixed number of decimals
type Fixed struct {
	Value  float64
	Places int
}

// MarshalJSON implements json.Marshaler
func (f Fixed) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, f.Value, 'f', f.Places, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Fixed) UnmarshalJSON(b []byte) error {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	f.Value = v
	return nil
}

// StatusResponse is the status record returned by both operations.
// Status is "ok" on submit replies and omitted on status reads.
type StatusResponse struct {
	Status      string `json:"status,omitempty"`
	Pulses      int    `json:"pulses"`
	RPM         Fixed  `json:"rpm"`
	Freq        Fixed  `json:"freq"`
	PulsePct    int    `json:"pulse_pct"`
	Enabled     int    `json:"enabled"`
	FastFreq    Fixed  `json:"fast_freq"`
	FastPct     int    `json:"fast_pct"`
	FastEnabled int    `json:"fast_enabled"`
}

// NewStatusResponse renders snap. freq is recomputed from rpm and pulses.
func NewStatusResponse(snap core.Snapshot) StatusResponse {
	t := snap.Timing
	return StatusResponse{
		Pulses:      t.PulsesPerRev,
		RPM:         Fixed{t.RPM, 1},
		Freq:        Fixed{t.RPM / 60.0 * float64(t.PulsesPerRev), 3},
		PulsePct:    t.PulsePct,
		Enabled:     boolToInt(t.Enabled),
		FastFreq:    Fixed{snap.Fast.FreqHz, 1},
		FastPct:     snap.Fast.DutyPct,
		FastEnabled: boolToInt(snap.Fast.Enabled),
	}
}

// ErrorResponse is returned when an update is refused
type ErrorResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

// NewErrorResponse maps err to the message a client sees
func NewErrorResponse(err error) ErrorResponse {
	msg := err.Error()
	if err == core.ErrInvalidTiming {
		msg = ErrInvalidRPM.Error()
	}
	return ErrorResponse{Status: "error", Msg: msg}
}

// EventResponse is one scheduler event
type EventResponse struct {
	Name   string `json:"name"`
	Clock  uint32 `json:"clock_ms"`
	Value1 uint32 `json:"v1"`
	Value2 uint32 `json:"v2"`
	Text   string `json:"text"`
}

// EventsResponse lists scheduler events, oldest first
type EventsResponse struct {
	State  string          `json:"state,omitempty"`
	Events []EventResponse `json:"events"`
}

// NewEventsResponse renders events
func NewEventsResponse(events []core.Event) EventsResponse {
	out := EventsResponse{Events: make([]EventResponse, 0, len(events))}
	for _, e := range events {
		out.Events = append(out.Events, EventResponse{
			Name:   e.Name(),
			Clock:  e.Clock,
			Value1: e.Value1,
			Value2: e.Value2,
			Text:   e.String(),
		})
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
