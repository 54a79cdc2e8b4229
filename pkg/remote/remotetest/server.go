// Package remotetest provides an in-memory fake of the shop API for tests.
package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/clientsync/pkg/collection"
)

// RefreshCookie is the name of the renewal cookie set by the login route.
const RefreshCookie = "refresh_token"

type failure struct {
	method string
	prefix string
	status int
	msg    string
}

// Server serves /auth/login, /session/refresh and the collection routes
// over an httptest.Server.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	issue       func(userID string) string
	tokens      map[string]string // bearer -> user id
	renewals    map[string]string // refresh cookie -> user id
	merge       map[string]bool   // collection base -> sum quantities on add
	items       map[string][]collection.Item
	failures    []failure
	latency     time.Duration
	calls       map[string]int
	lastAuth    string
	lastReqID   string
	refreshUsed int
}

// Option configures a Server.
type Option func(*Server)

// WithTokenIssuer sets how bearer tokens are minted on login and refresh.
func WithTokenIssuer(fn func(userID string) string) Option {
	return func(s *Server) {
		s.issue = fn
	}
}

// WithCollection registers a collection at base. When merge is true repeated
// adds sum quantities, otherwise they leave the entry unchanged.
func WithCollection(base string, merge bool) Option {
	return func(s *Server) {
		s.merge[base] = merge
	}
}

// New starts a server with /cart (merging) and /wishlist collections. It is
// closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		issue:    func(userID string) string { return "token-" + userID + "-" + uuid.NewString() },
		tokens:   make(map[string]string),
		renewals: make(map[string]string),
		merge:    map[string]bool{"/cart": true, "/wishlist": false},
		items:    make(map[string][]collection.Item),
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.track, s.inject)

	r.Post("/auth/login", s.login)
	r.Post("/session/refresh", s.refresh)

	for base, merge := range s.merge {
		r.Route(base, func(r chi.Router) {
			r = r.With(s.authorize)
			r.Get("/{owner}", s.list(base))
			r.Delete("/{owner}", s.clear(base))
			r.Post("/{owner}/{item}", s.add(base, merge))
			r.Patch("/{owner}/{item}", s.update(base))
			r.Delete("/{owner}/{item}", s.remove(base))
		})
	}
	return r
}

// Authorize makes token a valid bearer credential for userID.
func (s *Server) Authorize(token, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = userID
}

// Revoke invalidates a bearer token.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// RevokeRenewals invalidates every refresh cookie.
func (s *Server) RevokeRenewals() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.renewals)
}

// Seed replaces the stored collection.
func (s *Server) Seed(base, owner string, items ...collection.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[base+"/"+owner] = slices.Clone(items)
}

// Items returns the stored collection.
func (s *Server) Items(base, owner string) []collection.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items[base+"/"+owner])
}

// FailNext makes the next request whose method matches and whose path starts
// with prefix fail with status and an error payload carrying msg.
func (s *Server) FailNext(method, prefix string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, prefix: prefix, status: status, msg: msg})
}

// SetLatency delays every response.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls returns how many requests were made with method to paths starting
// with prefix.
func (s *Server) Calls(method, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, count := range s.calls {
		m, path, _ := strings.Cut(key, " ")
		if m == method && strings.HasPrefix(path, prefix) {
			n += count
		}
	}
	return n
}

// Refreshes returns how many refresh requests succeeded.
func (s *Server) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshUsed
}

// LastAuthorization returns the Authorization header of the latest request.
func (s *Server) LastAuthorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth
}

// LastRequestID returns the X-Request-ID header of the latest request.
func (s *Server) LastRequestID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReqID
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.lastAuth = r.Header.Get("Authorization")
		s.lastReqID = r.Header.Get("X-Request-ID")
		latency := s.latency
		s.mu.Unlock()

		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		i := slices.IndexFunc(s.failures, func(f failure) bool {
			return f.method == r.Method && strings.HasPrefix(r.URL.Path, f.prefix)
		})
		var f failure
		if i >= 0 {
			f = s.failures[i]
			s.failures = slices.Delete(s.failures, i, i+1)
		}
		s.mu.Unlock()

		if i >= 0 {
			writeError(w, f.status, f.msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		userID, known := s.tokens[token]
		s.mu.Unlock()

		switch {
		case !ok || !known:
			writeError(w, http.StatusUnauthorized, "unauthorized")
		case chi.URLParam(r, "owner") != "" && chi.URLParam(r, "owner") != userID:
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	renewal := uuid.NewString()
	token := s.issue(req.UserID)
	s.mu.Lock()
	s.tokens[token] = req.UserID
	s.renewals[renewal] = req.UserID
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: renewal, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "refresh token missing")
		return
	}

	s.mu.Lock()
	userID, ok := s.renewals[cookie.Value]
	var token string
	if ok {
		token = s.issue(userID)
		s.tokens[token] = userID
		s.refreshUsed++
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh token expired")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) list(base string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.respond(w, base, chi.URLParam(r, "owner"))
	}
}

func (s *Server) clear(base string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "owner")
		s.mu.Lock()
		delete(s.items, base+"/"+owner)
		s.mu.Unlock()
		s.respond(w, base, owner)
	}
}

func (s *Server) add(base string, merge bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ref := chi.URLParam(r, "owner"), chi.URLParam(r, "item")
		var item collection.Item
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeError(w, http.StatusBadRequest, "invalid item")
			return
		}
		item.ProductRef = ref
		if merge && item.Quantity <= 0 {
			item.Quantity = 1
		}

		s.mu.Lock()
		key := base + "/" + owner
		items := s.items[key]
		i := slices.IndexFunc(items, func(it collection.Item) bool {
			return it.ProductRef == item.ProductRef && it.Variant == item.Variant
		})
		switch {
		case i >= 0 && merge:
			items[i].Quantity += item.Quantity
		case i < 0:
			item.ID = fmt.Sprintf("%s-%s", strings.TrimPrefix(base, "/"), uuid.NewString()[:8])
			items = append(items, item)
		}
		s.items[key] = items
		s.mu.Unlock()

		s.respond(w, base, owner)
	}
}

func (s *Server) update(base string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "item")
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "quantity must be positive")
			return
		}

		s.mu.Lock()
		key := base + "/" + owner
		items := s.items[key]
		i := slices.IndexFunc(items, func(it collection.Item) bool { return it.ID == id })
		if i >= 0 {
			items[i].Quantity = req.Quantity
		}
		s.mu.Unlock()

		if i < 0 {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.respond(w, base, owner)
	}
}

func (s *Server) remove(base string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "item")
		s.mu.Lock()
		key := base + "/" + owner
		items := s.items[key]
		i := slices.IndexFunc(items, func(it collection.Item) bool { return it.ID == id })
		if i >= 0 {
			s.items[key] = slices.Delete(items, i, i+1)
		}
		s.mu.Unlock()

		if i < 0 {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		s.respond(w, base, owner)
	}
}

func (s *Server) respond(w http.ResponseWriter, base, owner string) {
	items := s.Items(base, owner)
	if items == nil {
		items = []collection.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
