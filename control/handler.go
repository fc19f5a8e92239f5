// Package control implements the two operations the control surface calls,
// apply update and read status, independent of the transport carrying them.
package control

import (
	"encoding/json"

	"pulsegen/core"
)

// Device is the part of core.Device the control surface needs
type Device interface {
	ApplyUpdate(u core.Update) (core.Snapshot, error)
	Status() core.Snapshot
	Events() []core.Event
}

// Command selects an operation on links that carry raw frames
type Command byte

const (
	CmdSubmit Command = 'S'
	CmdStatus Command = 'G'
	CmdEvents Command = 'E'
)

// Handler answers control requests with JSON bodies
type Handler struct {
	dev Device
	log *core.Logger
}

// NewHandler creates a handler for dev. log may be nil.
func NewHandler(dev Device, log *core.Logger) *Handler {
	return &Handler{dev: dev, log: log}
}

// Submit applies a form-encoded update. ok is false when the update was
// refused; the body then holds an ErrorResponse.
func (h *Handler) Submit(body []byte) (resp interface{}, ok bool) {
	u, err := ParseUpdate(body, h.dev.Status())
	if err != nil {
		h.log.Warnf("submit: %v", err)
		return NewErrorResponse(err), false
	}
	snap, err := h.dev.ApplyUpdate(u)
	if err != nil {
		return NewErrorResponse(err), false
	}
	r := NewStatusResponse(snap)
	r.Status = "ok"
	return r, true
}

// Status reports the current configuration
func (h *Handler) Status() StatusResponse {
	return NewStatusResponse(h.dev.Status())
}

// Events reports recent scheduler events
func (h *Handler) Events() EventsResponse {
	return NewEventsResponse(h.dev.Events())
}

// Handle runs cmd and returns the JSON reply. Unknown commands get an
// ErrorResponse.
func (h *Handler) Handle(cmd Command, body []byte) []byte {
	var resp interface{}
	switch cmd {
	case CmdSubmit:
		resp, _ = h.Submit(body)
	case CmdStatus:
		resp = h.Status()
	case CmdEvents:
		resp = h.Events()
	default:
		resp = ErrorResponse{Status: "error", Msg: "unknown command"}
	}
	out, err := json.Marshal(resp)
	if err != nil {
		h.log.Errorf("encode reply: %v", err)
		return []byte(`{"status":"error","msg":"encode failed"}`)
	}
	return out
}
