package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/SimonWaldherr/bloomd/internal/bloomfilter"
	"github.com/SimonWaldherr/bloomd/internal/filterstore"
	"github.com/SimonWaldherr/bloomd/internal/metrics"
)

// Server is bloomd's HTTP transport over a *filterstore.Manager.
type Server struct {
	mgr      *filterstore.Manager
	validate *validator.Validate
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
}

// NewServer builds an HTTP Server. ratePerSecond <= 0 disables limiting.
func NewServer(mgr *filterstore.Manager, ratePerSecond float64, m *metrics.Metrics) *Server {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), int(ratePerSecond))
	}
	return &Server{mgr: mgr, validate: validator.New(), limiter: limiter, metrics: m}
}

// Router builds the gorilla/mux router exposing the full filter manager
// contract: create, drop, clear, unmap, flush, check_keys, set_keys,
// list_all, list_cold, and info.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.correlationMiddleware)

	r.Handle("/filters", s.wrap("create", s.handleCreate)).Methods(http.MethodPost)
	r.Handle("/filters", s.wrap("list_all", s.handleListAll)).Methods(http.MethodGet)
	r.Handle("/filters/cold", s.wrap("list_cold", s.handleListCold)).Methods(http.MethodGet)
	r.Handle("/filters/{name}", s.wrap("drop", s.handleDrop)).Methods(http.MethodDelete)
	r.Handle("/filters/{name}/info", s.wrap("info", s.handleInfo)).Methods(http.MethodGet)
	r.Handle("/filters/{name}/clear", s.wrap("clear", s.handleClear)).Methods(http.MethodPost)
	r.Handle("/filters/{name}/unmap", s.wrap("unmap", s.handleUnmap)).Methods(http.MethodPost)
	r.Handle("/filters/{name}/flush", s.wrap("flush", s.handleFlush)).Methods(http.MethodPost)
	r.Handle("/filters/{name}/keys/check", s.rateLimited(s.wrap("check_keys", s.handleCheckKeys))).Methods(http.MethodPost)
	r.Handle("/filters/{name}/keys/set", s.rateLimited(s.wrap("set_keys", s.handleSetKeys))).Methods(http.MethodPost)
	return r
}

type correlationIDKey struct{}

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		log.Printf("api: %s %s request_id=%s", r.Method, r.URL.Path, id)
		next.ServeHTTP(w, r)
	})
}

// wrap attaches Prometheus request/latency instrumentation, if configured,
// to a single route's handler.
func (s *Server) wrap(operation string, h http.HandlerFunc) http.Handler {
	if s.metrics == nil {
		return h
	}
	return s.metrics.HTTPMiddleware(operation, h)
}

// rateLimited guards the highest-QPS routes (check_keys/set_keys) behind
// the server's limiter. The gRPC transport applies no rate limit.
func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	var cfg *bloomfilter.Config
	if req.Capacity != 0 || req.Probability != 0 || req.InMemory {
		c := bloomfilter.DefaultConfig()
		if req.Capacity != 0 {
			c.Capacity = req.Capacity
		}
		if req.Probability != 0 {
			c.Probability = req.Probability
		}
		c.InMemory = req.InMemory
		cfg = &c
	}
	st := s.mgr.Create(req.Name, cfg)
	writeStatus(w, st)
}

func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeStatus(w, s.mgr.Drop(name))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeStatus(w, s.mgr.Clear(name))
}

func (s *Server) handleUnmap(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeStatus(w, s.mgr.Unmap(name))
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	writeStatus(w, s.mgr.Flush(name))
}

func (s *Server) handleCheckKeys(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req KeysRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	results, st := s.mgr.CheckKeys(name, toByteKeys(req.Keys))
	if st != filterstore.StatusOK {
		writeStatus(w, st)
		return
	}
	writeJSON(w, http.StatusOK, KeysResponse{Results: results})
}

func (s *Server) handleSetKeys(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req KeysRequest
	if !decodeAndValidate(w, r, s.validate, &req) {
		return
	}
	results, st := s.mgr.SetKeys(name, toByteKeys(req.Keys))
	if st != filterstore.StatusOK {
		writeStatus(w, st)
		return
	}
	writeJSON(w, http.StatusOK, KeysResponse{Results: results})
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse{Names: s.mgr.ListAll()})
}

func (s *Server) handleListCold(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListResponse{Names: s.mgr.ListCold()})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var info InfoResponse
	st := s.mgr.WithFilter(name, func(f *bloomfilter.Filter) {
		info = InfoResponse{
			Name:        name,
			Capacity:    f.Capacity(),
			Probability: f.Probability(),
			Count:       f.Count(),
			Proxied:     f.IsProxied(),
		}
	})
	if st != filterstore.StatusOK {
		writeStatus(w, st)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func toByteKeys(keys []string) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := v.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

func statusToHTTP(st filterstore.Status) int {
	switch st {
	case filterstore.StatusOK:
		return http.StatusOK
	case filterstore.StatusNotFound:
		return http.StatusNotFound
	case filterstore.StatusAlreadyExists:
		return http.StatusConflict
	case filterstore.StatusNotProxied:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeStatus(w http.ResponseWriter, st filterstore.Status) {
	writeJSON(w, statusToHTTP(st), StatusResponse{Status: st.String()})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
