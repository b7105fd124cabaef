// Package mockroute is an in-process stand-in for the route-info lookup API,
// with latency and failure injection for tests and local runs.
package mockroute

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Path is the lookup route served by Handler.
const Path = "/api/route/GetRouteInfoByCoordinates"

// Call records a request made to the mock service.
type Call struct {
	Method    string
	Path      string
	RequestID string
	Status    int
}

// Resolver returns the route fields for a point, or ok=false when nothing is
// within snapDistance.
type Resolver func(x, y, snapDistance float64) (fields map[string]any, ok bool)

// Server implements the lookup endpoint.
type Server struct {
	mu    sync.Mutex
	calls []Call

	resolver Resolver
	latency  time.Duration

	// Per request id behaviour.
	failFirst map[string]scriptedFailure
	rejects   map[string]int
	noRoute   map[string]struct{}
	delays    map[string]time.Duration
	attempts  map[string]int

	inFlight    int
	maxInFlight int
}

type scriptedFailure struct {
	times  int
	status int
}

// New constructs a server that resolves every point with DefaultResolver.
func New() *Server {
	return &Server{
		resolver:  DefaultResolver,
		failFirst: make(map[string]scriptedFailure),
		rejects:   make(map[string]int),
		noRoute:   make(map[string]struct{}),
		delays:    make(map[string]time.Duration),
		attempts:  make(map[string]int),
	}
}

// SetResolver replaces the point resolver.
func (s *Server) SetResolver(r Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

// SetLatency delays every response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// FailFirst answers the first n attempts for requestID with status.
func (s *Server) FailFirst(requestID string, n int, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFirst[requestID] = scriptedFailure{times: n, status: status}
}

// Reject always answers requestID with status.
func (s *Server) Reject(requestID string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[requestID] = status
}

// NoRoute answers requestID with an Info envelope.
func (s *Server) NoRoute(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noRoute[requestID] = struct{}{}
}

// Delay holds the response for requestID for d (in addition to SetLatency).
func (s *Server) Delay(requestID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[requestID] = d
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleLookup)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Attempts returns how many requests were received for requestID.
func (s *Server) Attempts(requestID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[requestID]
}

// MaxInFlight returns the highest number of concurrently open requests seen.
func (s *Server) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("request_id")

	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.attempts[id]++
	attempt := s.attempts[id]
	wait := s.latency + s.delays[id]
	s.mu.Unlock()

	status := s.respond(w, r, id, attempt, wait)

	s.mu.Lock()
	s.inFlight--
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, RequestID: id, Status: status})
	s.mu.Unlock()
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, id string, attempt int, wait time.Duration) int {
	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-r.Context().Done():
			t.Stop()
			return 0
		}
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return http.StatusMethodNotAllowed
	}

	s.mu.Lock()
	fail, scripted := s.failFirst[id]
	rejectStatus, rejected := s.rejects[id]
	_, noRoute := s.noRoute[id]
	resolver := s.resolver
	s.mu.Unlock()

	if scripted && attempt <= fail.times {
		http.Error(w, http.StatusText(fail.status), fail.status)
		return fail.status
	}
	if rejected {
		http.Error(w, http.StatusText(rejectStatus), rejectStatus)
		return rejectStatus
	}

	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("xcoord"), 64)
	y, errY := strconv.ParseFloat(q.Get("ycoord"), 64)
	if errX != nil || errY != nil {
		http.Error(w, "xcoord and ycoord must be numbers", http.StatusUnprocessableEntity)
		return http.StatusUnprocessableEntity
	}
	snapDistance := float64(200)
	if v := q.Get("snap_distance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "snap_distance must be a number", http.StatusUnprocessableEntity)
			return http.StatusUnprocessableEntity
		}
		snapDistance = d
	}

	var fields map[string]any
	found := false
	if !noRoute {
		fields, found = resolver(x, y, snapDistance)
	}
	if !found {
		writeJSON(w, map[string]any{
			"Info":       fmt.Sprintf("No route found within %g of the input point", snapDistance),
			"Request_Id": id,
		})
		return http.StatusOK
	}

	writeJSON(w, map[string]any{
		"Route_Info": filterKeys(fields, q.Get("return_keys")),
		"Request_Id": id,
	})
	return http.StatusOK
}

// DefaultResolver "snaps" every point to a fixed route, deriving the milepoint
// from the coordinates so results differ per point.
func DefaultResolver(x, y, _ float64) (map[string]any, bool) {
	mp := math.Mod(math.Abs(x)+math.Abs(y), 100)
	return map[string]any{
		"District_Number":         7,
		"County_Name":             "Fayette",
		"Route_Unique_Identifier": "034-KY-0004 -000",
		"Milepoint":               math.Round(mp*1000) / 1000,
		"Route":                   "KY-4",
		"Road_Name":               "NEW CIRCLE RD",
		"Bridge_Identifier":       nil,
		"Geometry":                fmt.Sprintf("POINT (%g %g)", x, y),
	}, true
}

func filterKeys(fields map[string]any, returnKeys string) map[string]any {
	if strings.TrimSpace(returnKeys) == "" {
		return fields
	}
	out := make(map[string]any)
	for _, k := range strings.Split(returnKeys, ",") {
		k = strings.TrimSpace(k)
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
