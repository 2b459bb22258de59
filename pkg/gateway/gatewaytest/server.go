// Package gatewaytest runs an in-process gateway for tests. It serves the
// debug device API, the things API and the login exchange, and records
// every request it sees.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Request is one request received by the server.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          map[string]any
}

// Server is a fake gateway backed by httptest.
type Server struct {
	*httptest.Server

	signingKey []byte

	mu        sync.Mutex
	users     map[string]string
	devices   map[string]map[string]any
	things    map[string]map[string]any
	props     map[string]map[string]any
	overrides map[string]override
	issued    map[string]bool
	requests  []Request
	logins    int
	noDebug   bool
	rejectAll bool
}

type override struct {
	status int
	body   string
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		signingKey: []byte("gatewaytest"),
		users:      map[string]string{},
		devices:    map[string]map[string]any{},
		things:     map[string]map[string]any{},
		props:      map[string]map[string]any{},
		overrides:  map[string]override{},
		issued:     map[string]bool{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", s.loginHandler)
	mux.HandleFunc("GET /debug/devices", s.devicesHandler)
	mux.HandleFunc("GET /debug/device/{id}", s.deviceHandler)
	mux.HandleFunc("PUT /debug/device/{id}/cmd/{cmd}", s.deviceCmdHandler)
	mux.HandleFunc("GET /things", s.thingsHandler)
	mux.HandleFunc("GET /things/{id}", s.thingHandler)
	mux.HandleFunc("GET /things/{id}/properties", s.propertiesHandler)
	mux.HandleFunc("GET /things/{id}/properties/{name}", s.propertyHandler)
	return s.record(s.authMiddleware(mux))
}

// AddUser registers a login.
func (s *Server) AddUser(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = password
}

// AddDevice registers a device record; it must carry an "id".
func (s *Server) AddDevice(device map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[device["id"].(string)] = device
}

// AddThing registers a thing under id with the given properties. The
// thing's href is set to /things/{id}.
func (s *Server) AddThing(id string, thing, properties map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if thing == nil {
		thing = map[string]any{}
	}
	thing["href"] = "/things/" + id
	s.things[id] = thing
	if properties == nil {
		properties = map[string]any{}
	}
	s.props[id] = properties
}

// FailWith makes every request to path answer with status and body.
func (s *Server) FailWith(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[path] = override{status: status, body: body}
}

// DisableDebug makes the debug API answer 404, as a gateway started
// without debug support does.
func (s *Server) DisableDebug() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noDebug = true
}

// RejectAllTokens makes every authenticated request answer 401, even with
// a freshly issued token.
func (s *Server) RejectAllTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll = true
}

// Token issues a valid token for email without a login request.
func (s *Server) Token(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(email, time.Now().Add(time.Hour))
}

// ExpiredToken issues a token whose expiry is in the past.
func (s *Server) ExpiredToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(email, time.Now().Add(-time.Hour))
}

// RevokeTokens invalidates every token issued so far.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued = map[string]bool{}
}

// Requests returns every request except logins, in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Path != "/login" {
			out = append(out, r)
		}
	}
	return out
}

// Logins returns the number of login requests received.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Server) issue(email string, exp time.Time) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": email,
		"iss": "gatewaytest",
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString(s.signingKey)
	if err != nil {
		panic(fmt.Sprintf("gatewaytest: sign token: %v", err))
	}
	s.issued[signed] = true
	return signed
}

// record captures each request before routing.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		r.Body.Close()
		req := Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		}
		if len(data) > 0 {
			json.Unmarshal(data, &req.Body)
		}
		r.Body = io.NopCloser(strings.NewReader(string(data)))

		s.mu.Lock()
		s.requests = append(s.requests, req)
		ov, hasOverride := s.overrides[r.URL.Path]
		s.mu.Unlock()

		if hasOverride {
			w.WriteHeader(ov.status)
			io.WriteString(w, ov.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires a bearer token issued by this server on
// everything but /login.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !s.validToken(token) {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) validToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectAll || !s.issued[token] {
		return false
	}
	_, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins++
	want, ok := s.users[req.Email]
	if !ok || want != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jwt": s.issue(req.Email, time.Now().Add(time.Hour))})
}

func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noDebug {
		http.NotFound(w, r)
		return
	}
	list := make([]map[string]any, 0, len(s.devices))
	for _, d := range s.devices {
		list = append(list, d)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) deviceHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[r.PathValue("id")]
	if !ok || s.noDebug {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) deviceCmdHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[r.PathValue("id")]; !ok || s.noDebug {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) thingsHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]map[string]any, 0, len(s.things))
	for _, t := range s.things {
		list = append(list, t)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) thingHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.things[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) propertiesHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.props[r.PathValue("id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) propertyHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := r.PathValue("name")
	v, ok := s.props[r.PathValue("id")][name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{name: v})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
