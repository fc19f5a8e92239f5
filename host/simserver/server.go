// Package simserver exposes a simulated pulse generator over HTTP. The
// endpoints carry the same JSON records as the firmware's USB link.
package simserver

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"pulsegen/control"
	"pulsegen/core"
)

// Server routes HTTP requests to a simulator
type Server struct {
	sim    *Simulator
	h      *control.Handler
	log    *core.Logger
	router chi.Router
}

// New creates a server for s. reqLog receives one line per request and may
// be nil.
func New(s *Simulator, log *core.Logger, reqLog middleware.LoggerInterface) *Server {
	srv := &Server{
		sim: s,
		h:   control.NewHandler(s.Device, log),
		log: log,
	}

	r := chi.NewRouter()
	if reqLog != nil {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: reqLog, NoColor: true}))
	}
	r.Use(middleware.Recoverer)

	r.Post("/submit", srv.submit)
	r.Get("/status", srv.status)
	r.Get("/events", srv.events)
	r.Get("/trace", srv.trace)
	srv.router = r
	return srv
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	// One byte past the limit is enough to refuse the body
	body, err := io.ReadAll(io.LimitReader(r.Body, control.MaxBodyBytes+1))
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, control.NewErrorResponse(control.ErrMalformedBody))
		return
	}

	resp, ok := s.h.Submit(body)
	if !ok {
		render.Status(r, http.StatusBadRequest)
	}
	render.JSON(w, r, resp)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.h.Status())
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	resp := s.h.Events()
	resp.State = s.sim.Device.State().String()
	render.JSON(w, r, resp)
}

// EdgeResponse is one recorded output run
type EdgeResponse struct {
	AtUs       uint64 `json:"at_us"`
	Level      int    `json:"level"`
	DurationUs uint32 `json:"duration_us"`
}

// TraceResponse reports what the simulated outputs did
type TraceResponse struct {
	State     string         `json:"state"`
	Level     int            `json:"level"`
	Duty      float64        `json:"duty"`
	ElapsedUs int64          `json:"elapsed_us"`
	Edges     []EdgeResponse `json:"edges"`
	Tx        TxResponse     `json:"tx"`
	Fast      FastResponse   `json:"fast"`
}

// TxResponse mirrors sim.TxStats
type TxResponse struct {
	Channels     int `json:"channels"`
	AllocFails   int `json:"alloc_fails"`
	Transmitted  int `json:"transmitted"`
	QueueFull    int `json:"queue_full"`
	Underruns    int `json:"underruns"`
	OpenChannels int `json:"open_channels"`
}

// FastResponse is the programmed fast channel state
type FastResponse struct {
	FreqHz uint32  `json:"freq_hz"`
	Duty   uint32  `json:"duty"`
	Pct    float64 `json:"pct"`
}

// trace reports the output trace. ?last=N limits the edges to the N most
// recent.
func (s *Server) trace(w http.ResponseWriter, r *http.Request) {
	tr := s.sim.Trace()
	edges := tr.Edges()
	if v := r.URL.Query().Get("last"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, control.ErrorResponse{Status: "error", Msg: "invalid last"})
			return
		}
		if n < len(edges) {
			edges = edges[len(edges)-n:]
		}
	}

	resp := TraceResponse{
		State:     s.sim.Device.State().String(),
		Level:     boolToInt(tr.Level()),
		Duty:      tr.Duty(),
		ElapsedUs: tr.Elapsed().Microseconds(),
		Edges:     make([]EdgeResponse, 0, len(edges)),
	}
	for _, e := range edges {
		resp.Edges = append(resp.Edges, EdgeResponse{AtUs: e.At, Level: boolToInt(e.Level), DurationUs: e.Duration})
	}

	st := s.sim.Tx.Stats()
	resp.Tx = TxResponse{
		Channels:     st.Channels,
		AllocFails:   st.AllocFails,
		Transmitted:  st.Transmitted,
		QueueFull:    st.QueueFull,
		Underruns:    st.Underruns,
		OpenChannels: st.OpenChannels,
	}
	fast := s.sim.Fast()
	resp.Fast = FastResponse{FreqHz: fast.FreqHz, Duty: uint32(fast.Duty), Pct: fast.DutyFraction() * 100}

	render.JSON(w, r, resp)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
