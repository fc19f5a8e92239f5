package simserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulsegen/host/config"
)

func testConfig() config.SimConfig {
	return config.SimConfig{
		Listen:       ":0",
		TimeScale:    0.01,
		SlowPin:      2,
		FastPin:      3,
		SettleDelay:  5 * time.Millisecond,
		DisabledPoll: 5 * time.Millisecond,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *Simulator) {
	t.Helper()
	cfg := testConfig()
	sc := (&config.Config{Sim: cfg}).SchedulerConfig()
	s := NewSimulator(cfg, sc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	ts := httptest.NewServer(New(s, nil, nil))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
	})
	return ts, s
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, strings.TrimSpace(string(body))
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/x-www-form-urlencoded", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, strings.TrimSpace(string(b))
}

func TestStatusDefaults(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := get(t, ts.URL+"/status")
	want := `{"pulses":1,"rpm":60.0,"freq":1.000,"pulse_pct":10,"enabled":0,` +
		`"fast_freq":1000.0,"fast_pct":10,"fast_enabled":0}`
	if code != http.StatusOK || body != want {
		t.Errorf("GET /status = %d %s", code, body)
	}
}

func TestSubmit(t *testing.T) {
	ts, s := newTestServer(t)

	code, body := post(t, ts.URL+"/submit", "pulses=2&rpm=120&pulse_pct=25&enabled=1&fast_freq=20000&fast_pct=50&fast_enabled=1")
	want := `{"status":"ok","pulses":2,"rpm":120.0,"freq":4.000,"pulse_pct":25,"enabled":1,` +
		`"fast_freq":20000.0,"fast_pct":50,"fast_enabled":1}`
	if code != http.StatusOK || body != want {
		t.Errorf("POST /submit = %d %s", code, body)
	}
	if st := s.Fast(); st.FreqHz != 20000 || st.Duty != 256 {
		t.Errorf("fast channel = %+v", st)
	}
}

func TestSubmitErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"empty", "", "empty body"},
		{"too large", "pulses=1&x=" + strings.Repeat("a", 600), "body too large"},
		{"invalid rpm", "rpm=0", "invalid rpm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := post(t, ts.URL+"/submit", tt.body)
			if code != http.StatusBadRequest {
				t.Errorf("code = %d, want 400", code)
			}
			want := `{"status":"error","msg":"` + tt.msg + `"}`
			if body != want {
				t.Errorf("body = %s, want %s", body, want)
			}
		})
	}
}

func TestTraceShowsPulses(t *testing.T) {
	ts, s := newTestServer(t)

	if code, body := post(t, ts.URL+"/submit", "pulses=2&rpm=120&pulse_pct=25&enabled=1"); code != http.StatusOK {
		t.Fatalf("submit = %d %s", code, body)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Tx.Stats().Transmitted < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("no transmissions, state %s", s.Device.State())
		}
		time.Sleep(time.Millisecond)
	}

	_, body := get(t, ts.URL+"/trace?last=4")
	var tr TraceResponse
	if err := json.Unmarshal([]byte(body), &tr); err != nil {
		t.Fatalf("decode trace: %v", err)
	}
	if tr.State != "STREAMING" {
		t.Errorf("state = %s", tr.State)
	}
	if len(tr.Edges) != 4 {
		t.Fatalf("got %d edges, want 4", len(tr.Edges))
	}
	if tr.Duty != 0.25 {
		t.Errorf("duty = %v, want 0.25", tr.Duty)
	}
	if tr.Tx.Transmitted < 2 || tr.Tx.OpenChannels != 1 {
		t.Errorf("tx = %+v", tr.Tx)
	}

	code, _ := get(t, ts.URL+"/trace?last=x")
	if code != http.StatusBadRequest {
		t.Errorf("bad last = %d, want 400", code)
	}
}

func TestEventsReportState(t *testing.T) {
	ts, _ := newTestServer(t)

	post(t, ts.URL+"/submit", "pulses=1&rpm=60")
	_, body := get(t, ts.URL+"/events")
	var ev struct {
		State  string `json:"state"`
		Events []struct {
			Name string `json:"name"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if ev.State == "" {
		t.Error("state missing")
	}
	found := false
	for _, e := range ev.Events {
		if e.Name == "APPLY" {
			found = true
		}
	}
	if !found {
		t.Errorf("no APPLY event in %s", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts, _ := newTestServer(t)
	if code, _ := get(t, ts.URL+"/nope"); code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", code)
	}
}
