// Package tricounttest provides an in-memory Tricount API server for tests.
package tricounttest

import (
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/tricount"
)

// DefaultKey is the public registry key served by servers from New.
const DefaultKey = "tTESTKEY"

const userID = 4242

// Server emulates the registry installation and lookup endpoints.
type Server struct {
	URL string
	Key string

	// Title is the registry title.
	Title string

	mu            sync.Mutex
	entries       []tricount.RegistryEntry
	tokens        map[string]bool
	installations int
	failInstall   bool
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Key:    DefaultKey,
		Title:  "Test trip",
		tokens: make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/v1/session-registry-installation", s.handleInstallation)
	r.Get("/v1/user/{userID}/registry", s.handleRegistry)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	s.URL = ts.URL
	return s
}

// AddEntry appends a raw registry entry.
func (s *Server) AddEntry(entry tricount.RegistryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// FailInstallation makes installation requests fail with 500.
func (s *Server) FailInstallation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failInstall = true
}

// Installations returns the number of successful installations.
func (s *Server) Installations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installations
}

// Expense builds a non-user expense entry. amount is the positive total;
// it is stored negated as Tricount does. shares maps member to share.
func Expense(id, payer, amount, description, date, category string, shares map[string]string) tricount.RegistryEntry {
	entry := tricount.RegistryEntry{
		UUID:            id,
		TypeTransaction: "NORMAL",
		MembershipOwned: member(payer),
		Amount:          tricount.Amount{Value: "-" + amount, Currency: "EUR"},
		Description:     description,
		Date:            date + " 12:00:00.000000",
		Category:        "OTHER",
	}
	if category != "" {
		entry.CategoryCustom = &category
	}
	for name, share := range shares {
		entry.Allocations = append(entry.Allocations, tricount.Allocation{
			Membership: member(name),
			Amount:     tricount.Amount{Value: "-" + share, Currency: "EUR"},
		})
	}
	return entry
}

func member(name string) tricount.Membership {
	var detail tricount.MembershipDetail
	detail.Alias.DisplayName = name
	return tricount.Membership{NonUser: &detail}
}

func (s *Server) handleInstallation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AppInstallationUUID string `json:"app_installation_uuid"`
		ClientPublicKey     string `json:"client_public_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failInstall {
		writeError(w, http.StatusInternalServerError, "Installation unavailable.")
		return
	}
	block, _ := pem.Decode([]byte(req.ClientPublicKey))
	if block == nil || block.Type != "RSA PUBLIC KEY" {
		writeError(w, http.StatusBadRequest, "Public key is invalid.")
		return
	}
	if r.Header.Get("app-id") != req.AppInstallationUUID || r.Header.Get("X-Bunq-Client-Request-Id") == "" {
		writeError(w, http.StatusBadRequest, "Missing client headers.")
		return
	}

	token := uuid.NewString()
	s.tokens[token] = true
	s.installations++

	writeJSON(w, http.StatusOK, map[string]any{
		"Response": []map[string]any{
			{"Id": map[string]any{"id": s.installations}},
			{"Token": map[string]any{"token": token}},
			{"UserPerson": map[string]any{"id": userID}},
		},
	})
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tokens[r.Header.Get("X-Bunq-Client-Authentication")] || chi.URLParam(r, "userID") != strconv.Itoa(userID) {
		writeError(w, http.StatusUnauthorized, "Insufficient authorisation.")
		return
	}
	if r.URL.Query().Get("public_identifier_token") != s.Key {
		writeError(w, http.StatusNotFound, "Registry not found.")
		return
	}

	items := make([]map[string]any, 0, len(s.entries))
	for _, e := range s.entries {
		items = append(items, map[string]any{"RegistryEntry": e})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"Response": []map[string]any{{
			"Registry": map[string]any{
				"id":                 1,
				"title":              s.Title,
				"currency":           "EUR",
				"all_registry_entry": items,
			},
		}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, description string) {
	writeJSON(w, status, map[string]any{
		"Error": []map[string]string{{"error_description": description}},
	})
}
