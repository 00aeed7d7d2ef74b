package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-negotiation/internal/dispatch"
	"github.com/example/ride-negotiation/internal/engine"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/store"
)

// Server is the view adapter's transport: it converts HTTP/WS traffic into
// engine intents and view-state snapshots. No negotiation logic lives here.
type Server struct {
	Engine *engine.Engine
	Store  *store.Store
	WSReg  *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(eng *engine.Engine, st *store.Store, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{Engine: eng, Store: st, WSReg: wsreg, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/passengers/{id}/requests", s.handleSubmitRequest).Methods("POST")
	api.HandleFunc("/passengers/{id}/accept", s.handleAcceptOffer).Methods("POST")
	api.HandleFunc("/passengers/{id}/cancel", s.handleCancelRequest).Methods("POST")
	api.HandleFunc("/passengers/{id}/rating", s.handleRateTrip).Methods("POST")
	api.HandleFunc("/passengers/{id}/new-ride", s.handleNewRide).Methods("POST")
	api.HandleFunc("/passengers/{id}/state", s.handlePassengerState).Methods("GET")

	api.HandleFunc("/requests", s.handleOpenRequests).Methods("GET")
	api.HandleFunc("/drivers/{id}/online", s.handleDriverOnline).Methods("POST")
	api.HandleFunc("/drivers/{id}/offers", s.handleDriverOffer).Methods("POST")

	api.HandleFunc("/admin/drivers", s.handleListDrivers).Methods("GET")
	api.HandleFunc("/admin/drivers/{id}/verification", s.handleSetVerification).Methods("POST")
	api.HandleFunc("/admin/trips", s.handleActiveTrips).Methods("GET")
	api.HandleFunc("/admin/overview", s.handleOverview).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in engine.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	req, err := s.Engine.SubmitRequest(mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 201, req)
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	trip, err := s.Engine.AcceptOffer(mux.Vars(r)["id"], in.DriverID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, trip)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.CancelRequest(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleRateTrip(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Stars int `json:"stars"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := s.Engine.RateTrip(mux.Vars(r)["id"], in.Stars); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleNewRide(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.NewRide(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handlePassengerState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Engine.PassengerState(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, snap)
}

func (s *Server) handleOpenRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.Store.OpenRequests())
}

func (s *Server) handleDriverOnline(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := s.Engine.SetDriverOnline(mux.Vars(r)["id"], in.Online); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleDriverOffer(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RequestID string  `json:"request_id"`
		Price     float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := s.Engine.SubmitOffer(mux.Vars(r)["id"], in.RequestID, in.Price); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.Store.Drivers())
}

func (s *Server) handleSetVerification(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status models.VerificationStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if err := s.Engine.SetVerification(mux.Vars(r)["id"], in.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(204)
}

func (s *Server) handleActiveTrips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.Store.ActiveTrips())
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.Store.Overview())
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	s.WSReg.Add(id, conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine error types onto HTTP statuses. Failed intents
// leave state untouched, so these are safe to surface directly.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var ve *engine.ValidationError
	var te *engine.InvalidTransitionError
	var re *engine.UnknownReferenceError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.As(err, &te):
		status = http.StatusConflict
	case errors.As(err, &re):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
