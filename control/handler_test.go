package control

import (
	"encoding/json"
	"testing"

	"pulsegen/core"
)

// fakeDevice backs the handler with a real ConfigStore and no hardware
type fakeDevice struct {
	store  *core.ConfigStore
	events *core.EventRing
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{store: core.NewConfigStore(nil), events: core.NewEventRing()}
}

func (d *fakeDevice) ApplyUpdate(u core.Update) (core.Snapshot, error) {
	snap, err := d.store.Apply(u)
	if err == nil {
		d.events.Record(core.EvtConfigApply, uint32(snap.Gen), 0)
	}
	return snap, err
}

func (d *fakeDevice) Status() core.Snapshot { return d.store.Snapshot() }
func (d *fakeDevice) Events() []core.Event  { return d.events.Events() }

func TestHandleStatusDefaults(t *testing.T) {
	h := NewHandler(newFakeDevice(), nil)
	got := string(h.Handle(CmdStatus, nil))
	want := `{"pulses":1,"rpm":60.0,"freq":1.000,"pulse_pct":10,"enabled":0,` +
		`"fast_freq":1000.0,"fast_pct":10,"fast_enabled":0}`
	if got != want {
		t.Errorf("status =\n%s\nwant\n%s", got, want)
	}
}

func TestHandleSubmit(t *testing.T) {
	h := NewHandler(newFakeDevice(), nil)
	body := "pulses=2&rpm=120&pulse_pct=25&enabled=1&fast_freq=5000&fast_pct=20&fast_enabled=1"
	got := string(h.Handle(CmdSubmit, []byte(body)))
	want := `{"status":"ok","pulses":2,"rpm":120.0,"freq":4.000,"pulse_pct":25,"enabled":1,` +
		`"fast_freq":5000.0,"fast_pct":20,"fast_enabled":1}`
	if got != want {
		t.Errorf("submit =\n%s\nwant\n%s", got, want)
	}
}

func TestHandleSubmitInvalidRPM(t *testing.T) {
	dev := newFakeDevice()
	h := NewHandler(dev, nil)
	before := dev.Status()

	got := string(h.Handle(CmdSubmit, []byte("pulses=9&rpm=0&enabled=1")))
	if want := `{"status":"error","msg":"invalid rpm"}`; got != want {
		t.Errorf("submit = %s, want %s", got, want)
	}
	if dev.Status() != before {
		t.Errorf("state changed to %+v", dev.Status())
	}
}

func TestHandleSubmitEmpty(t *testing.T) {
	h := NewHandler(newFakeDevice(), nil)
	got := string(h.Handle(CmdSubmit, nil))
	if want := `{"status":"error","msg":"empty body"}`; got != want {
		t.Errorf("submit = %s, want %s", got, want)
	}
}

func TestHandleStoredFastValuesAreClamped(t *testing.T) {
	h := NewHandler(newFakeDevice(), nil)
	h.Handle(CmdSubmit, []byte("rpm=60&fast_freq=1&fast_pct=500&fast_enabled=1"))

	var st StatusResponse
	if err := json.Unmarshal(h.Handle(CmdStatus, nil), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.FastFreq.Value != core.MinFastFreqHz || st.FastPct != core.MaxPulsePct {
		t.Errorf("fast = %v Hz %d %%, want clamped", st.FastFreq.Value, st.FastPct)
	}
}

func TestHandleEvents(t *testing.T) {
	h := NewHandler(newFakeDevice(), nil)
	h.Handle(CmdSubmit, []byte("rpm=30"))

	var ev EventsResponse
	if err := json.Unmarshal(h.Handle(CmdEvents, nil), &ev); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(ev.Events) != 1 || ev.Events[0].Name != "APPLY" || ev.Events[0].Value1 != 1 {
		t.Errorf("events = %+v", ev.Events)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h := NewHandler(newFakeDevice(), nil)
	if got := string(h.Handle('?', nil)); got != `{"status":"error","msg":"unknown command"}` {
		t.Errorf("got %s", got)
	}
}
