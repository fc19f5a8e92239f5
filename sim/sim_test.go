package sim

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"pulsegen/core"
)

func newChannel(t *testing.T, d *TxDriver, depth int) core.TxChannel {
	t.Helper()
	ch, err := d.NewChannel(core.TxChannelConfig{Pin: 4, ResolutionHz: core.TickResolutionHz, QueueDepth: depth})
	if err != nil {
		t.Fatalf("NewChannel failed: %v", err)
	}
	if err := ch.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	return ch
}

func TestTxChannelQueueAndCompletions(t *testing.T) {
	d := NewTxDriver(nil, 0.001)
	ch := newChannel(t, d, 2)
	defer ch.Close()

	var done atomic.Int32
	ch.OnTransmitDone(func() { done.Add(1) })

	symbols, _ := core.BuildWaveform(1, 1000, 3000, core.MaxSymbols)
	enc, _ := d.NewEncoder()

	// long enough that the first pass is still running
	long, _ := core.BuildWaveform(1, 200000, 200000, core.MaxSymbols)
	if err := ch.Transmit(enc, long); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if err := ch.Transmit(enc, symbols); err != nil {
		t.Fatalf("Transmit failed: %v", err)
	}
	if err := ch.Transmit(enc, symbols); err != core.ErrQueueFull {
		t.Errorf("third Transmit: got %v, want ErrQueueFull", err)
	}

	if err := ch.WaitAllDone(time.Second); err != nil {
		t.Fatalf("WaitAllDone failed: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for done.Load() != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if done.Load() != 2 {
		t.Errorf("got %d completions, want 2", done.Load())
	}

	st := d.Stats()
	if st.Transmitted != 2 || st.QueueFull != 1 {
		t.Errorf("stats = %+v", st)
	}
	edges := d.Trace().Edges()
	want := []Edge{
		{At: 0, Level: true, Duration: 200000},
		{At: 200000, Level: false, Duration: 200000},
		{At: 400000, Level: true, Duration: 1000},
		{At: 401000, Level: false, Duration: 3000},
	}
	if len(edges) != len(want) {
		t.Fatalf("edges = %+v", edges)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Errorf("edge %d = %+v, want %+v", i, edges[i], want[i])
		}
	}
}

func TestTxDriverDMAAndFailures(t *testing.T) {
	d := NewTxDriver(nil, 0.001)
	if _, err := d.NewChannel(core.TxChannelConfig{WithDMA: true}); err != core.ErrDMAUnavailable {
		t.Errorf("DMA channel: got %v, want ErrDMAUnavailable", err)
	}
	d.SetDMAAvailable(true)
	ch, err := d.NewChannel(core.TxChannelConfig{WithDMA: true})
	if err != nil {
		t.Fatalf("DMA channel failed: %v", err)
	}
	ch.Close()

	d.FailNext(1, 1)
	if _, err := d.NewChannel(core.TxChannelConfig{}); err == nil {
		t.Error("injected channel failure ignored")
	}
	if _, err := d.NewEncoder(); err == nil {
		t.Error("injected encoder failure ignored")
	}
	if st := d.Stats(); st.AllocFails != 2 || st.OpenChannels != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestTraceLimit(t *testing.T) {
	tr := NewTrace(3)
	for i := 0; i < 5; i++ {
		tr.appendLocked(i%2 == 0, 10)
	}
	edges := tr.Edges()
	if len(edges) != 3 || edges[0].At != 20 {
		t.Errorf("edges = %+v", edges)
	}
	if tr.Elapsed() != 50*time.Microsecond {
		t.Errorf("Elapsed = %v", tr.Elapsed())
	}
}

func TestDeviceOnSimulatedHardware(t *testing.T) {
	trace := NewTrace(0)
	tx := NewTxDriver(trace, 0.01)
	gpio := NewGPIO(trace, 4)
	pwm := NewPWM()

	cfg := core.DeviceConfig{Scheduler: core.DefaultSchedulerConfig(4), FastPin: 6}
	cfg.Scheduler.SettleDelay = 5 * time.Millisecond
	cfg.Scheduler.DisabledPoll = 5 * time.Millisecond
	dev := core.NewDevice(cfg, tx, gpio, pwm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx) }()

	_, err := dev.ApplyUpdate(core.Update{
		PulsesPerRev: 2, RPM: 120, PulsePct: 25, Enabled: true,
		Fast: core.FastChannelParams{FreqHz: 20000, DutyPct: 50, Enabled: true},
	})
	if err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for tx.Stats().Transmitted < 6 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d transmissions, state %s", tx.Stats().Transmitted, dev.State())
		}
		time.Sleep(time.Millisecond)
	}
	if duty := trace.Duty(); duty != 0.25 {
		t.Errorf("slow channel duty = %v, want 0.25", duty)
	}
	if st := pwm.State(6); st.FreqHz != 20000 || st.Duty != 256 {
		t.Errorf("fast channel = %+v", st)
	}

	dev.ApplyUpdate(core.Update{PulsesPerRev: 2, RPM: 120, PulsePct: 25, Enabled: false})
	for dev.State() != core.StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("never returned to IDLE, state %s", dev.State())
		}
		time.Sleep(time.Millisecond)
	}
	if high, output := gpio.Level(4); high || !output {
		t.Errorf("pin high=%t output=%t after disable", high, output)
	}
	if tx.Stats().OpenChannels != 0 {
		t.Errorf("%d channels left open", tx.Stats().OpenChannels)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
