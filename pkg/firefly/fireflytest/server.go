// Package fireflytest provides an in-memory Firefly III API server for tests.
package fireflytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shunichi-ikebuchi/tricount-firefly-sync/pkg/firefly"
)

// DefaultToken is the bearer token accepted by servers from New.
const DefaultToken = "test-token"

// failure is an injected response for a store request.
type failure struct {
	status  int
	message string
	errors  map[string][]string
}

type storedGroup struct {
	id     string
	splits []firefly.TransactionSplit
}

// Server emulates the subset of the Firefly III API the importer uses.
type Server struct {
	URL   string
	Token string

	// PageSize is the number of resources per list page.
	PageSize int
	// DuplicateMessageOnly drops the field errors from duplicate rejections,
	// leaving only the top-level message.
	DuplicateMessageOnly bool

	mu               sync.Mutex
	nextID           int
	accounts         []firefly.Account
	categories       []firefly.Category
	groups           []storedGroup
	rejectCategories map[string]bool
	storeFailures    map[string]failure
	listFailures     map[int]bool
	storeCalls       int
	categoryCalls    int
	listPages        []int
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		Token:            DefaultToken,
		PageSize:         50,
		rejectCategories: make(map[string]bool),
		storeFailures:    make(map[string]failure),
		listFailures:     make(map[int]bool),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/about", s.handleAbout)
		r.Get("/accounts", s.handleListAccounts)
		r.Get("/categories", s.handleListCategories)
		r.Post("/categories", s.handleCreateCategory)
		r.Get("/transactions", s.handleListTransactions)
		r.Post("/transactions", s.handleStoreTransaction)
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	s.URL = ts.URL
	return s
}

// AddAccount adds an account and returns its id.
func (s *Server) AddAccount(name, accountType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.accounts = append(s.accounts, firefly.Account{ID: id, Name: name, Type: accountType})
	return id
}

// AddCategory adds a category and returns its id.
func (s *Server) AddCategory(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.categories = append(s.categories, firefly.Category{ID: id, Name: name})
	return id
}

// AddTransaction seeds a stored single-split transaction.
func (s *Server) AddTransaction(split firefly.TransactionSplit) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	s.groups = append(s.groups, storedGroup{id: id, splits: []firefly.TransactionSplit{normalizeSplit(split)}})
	return id
}

// RejectCategory makes category creation for name fail validation.
func (s *Server) RejectCategory(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectCategories[strings.ToLower(name)] = true
}

// FailStore makes stores with externalID return status with message.
func (s *Server) FailStore(externalID string, status int, message string, fieldErrors map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeFailures[externalID] = failure{status: status, message: message, errors: fieldErrors}
}

// FailListPage makes transaction list requests for page return 500.
func (s *Server) FailListPage(page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listFailures[page] = true
}

// StoreCalls returns the number of POST /transactions requests received.
func (s *Server) StoreCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeCalls
}

// CategoryCreates returns the number of POST /categories requests received.
func (s *Server) CategoryCreates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categoryCalls
}

// ListedPages returns the transaction list pages requested, in order.
func (s *Server) ListedPages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.listPages...)
}

// Transactions returns every stored split.
func (s *Server) Transactions() []firefly.TransactionSplit {
	s.mu.Lock()
	defer s.mu.Unlock()

	var splits []firefly.TransactionSplit
	for _, g := range s.groups {
		splits = append(splits, g.splits...)
	}
	return splits
}

// Categories returns every category.
func (s *Server) Categories() []firefly.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]firefly.Category(nil), s.categories...)
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSONError(w, http.StatusUnauthorized, "Unauthenticated.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]string{
			"version":     "6.1.24",
			"api_version": "6.1.24",
			"php_version": "8.3.12",
			"os":          "Linux",
			"driver":      "sqlite",
		},
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accountType := r.URL.Query().Get("type")

	s.mu.Lock()
	var items []map[string]any
	for _, a := range s.accounts {
		if accountType != "" && a.Type != accountType {
			continue
		}
		items = append(items, resource("accounts", a.ID, map[string]any{"name": a.Name, "type": a.Type}))
	}
	s.mu.Unlock()

	s.writePage(w, r, items)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var items []map[string]any
	for _, c := range s.categories {
		items = append(items, resource("categories", c.ID, map[string]any{"name": c.Name}))
	}
	s.mu.Unlock()

	s.writePage(w, r, items)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to parse request body", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.categoryCalls++

	name := strings.TrimSpace(req.Name)
	if name == "" || s.rejectCategories[strings.ToLower(name)] {
		writeJSONError(w, http.StatusUnprocessableEntity, "The given data was invalid.",
			map[string][]string{"name": {"The name field is invalid."}})
		return
	}
	for _, c := range s.categories {
		if strings.EqualFold(c.Name, name) {
			writeJSONError(w, http.StatusUnprocessableEntity, "The name has already been taken.",
				map[string][]string{"name": {"The name has already been taken."}})
			return
		}
	}

	id := s.newID()
	s.categories = append(s.categories, firefly.Category{ID: id, Name: name})
	writeJSON(w, http.StatusOK, map[string]any{
		"data": resource("categories", id, map[string]any{"name": name}),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, end := query.Get("start"), query.Get("end")
	page := pageParam(r)

	s.mu.Lock()
	s.listPages = append(s.listPages, page)
	if s.listFailures[page] {
		s.mu.Unlock()
		writeJSONError(w, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	var items []map[string]any
	for _, g := range s.groups {
		date := g.splits[0].Date[:10]
		if (start != "" && date < start) || (end != "" && date > end) {
			continue
		}
		items = append(items, groupResource(g))
	}
	s.mu.Unlock()

	s.writePage(w, r, items)
}

func (s *Server) handleStoreTransaction(w http.ResponseWriter, r *http.Request) {
	var req firefly.StoreTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to parse request body", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeCalls++

	if len(req.Transactions) == 0 {
		writeJSONError(w, http.StatusUnprocessableEntity, "Need at least one transaction.",
			map[string][]string{"transactions": {"Need at least one transaction."}})
		return
	}

	for i, split := range req.Transactions {
		if f, ok := s.storeFailures[split.ExternalID]; ok {
			writeJSONError(w, f.status, f.message, f.errors)
			return
		}

		field := fmt.Sprintf("transactions.%d.description", i)
		if strings.TrimSpace(split.Description) == "" {
			writeJSONError(w, http.StatusUnprocessableEntity, "The description field is required.",
				map[string][]string{field: {"The description field is required."}})
			return
		}
		if len(split.Date) < 10 {
			writeJSONError(w, http.StatusUnprocessableEntity, "The date field is required.",
				map[string][]string{fmt.Sprintf("transactions.%d.date", i): {"The date field is required."}})
			return
		}

		if req.ErrorIfDuplicateHash {
			if dup, ok := s.findByExternalID(split.ExternalID); ok {
				msg := fmt.Sprintf("Duplicate of transaction #%s.", dup)
				var fieldErrors map[string][]string
				if !s.DuplicateMessageOnly {
					fieldErrors = map[string][]string{field: {msg}}
				}
				writeJSONError(w, http.StatusUnprocessableEntity, msg, fieldErrors)
				return
			}
		}
	}

	g := storedGroup{id: s.newID()}
	for _, split := range req.Transactions {
		g.splits = append(g.splits, normalizeSplit(split))
	}
	s.groups = append(s.groups, g)

	writeJSON(w, http.StatusOK, map[string]any{"data": groupResource(g)})
}

func (s *Server) findByExternalID(externalID string) (string, bool) {
	if externalID == "" {
		return "", false
	}
	for _, g := range s.groups {
		for _, split := range g.splits {
			if split.ExternalID == externalID {
				return g.id, true
			}
		}
	}
	return "", false
}

// writePage writes the requested page of items with pagination metadata.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, items []map[string]any) {
	perPage := s.PageSize
	if perPage <= 0 {
		perPage = 50
	}
	page := pageParam(r)

	totalPages := (len(items) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}

	from := (page - 1) * perPage
	to := from + perPage
	if from > len(items) {
		from = len(items)
	}
	if to > len(items) {
		to = len(items)
	}
	data := items[from:to]
	if data == nil {
		data = []map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": map[string]any{
			"pagination": firefly.Pagination{
				Total:       len(items),
				Count:       len(data),
				PerPage:     perPage,
				CurrentPage: page,
				TotalPages:  totalPages,
			},
		},
	})
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// normalizeSplit stores dates the way Firefly returns them.
func normalizeSplit(split firefly.TransactionSplit) firefly.TransactionSplit {
	if len(split.Date) == 10 {
		split.Date += "T00:00:00+00:00"
	}
	return split
}

func groupResource(g storedGroup) map[string]any {
	return resource("transactions", g.id, map[string]any{
		"group_title":  "",
		"transactions": g.splits,
	})
}

func resource(kind, id string, attributes map[string]any) map[string]any {
	return map[string]any{"type": kind, "id": id, "attributes": attributes}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a Firefly-style error response.
func writeJSONError(w http.ResponseWriter, status int, message string, fieldErrors map[string][]string) {
	body := map[string]any{"message": message, "exception": ""}
	if fieldErrors != nil {
		body["errors"] = fieldErrors
	} else {
		body["errors"] = []string{}
	}
	writeJSON(w, status, body)
}
