package testutils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"bwsrank/ingestion/internal/models"

	"github.com/go-chi/chi/v5"
)

const (
	FakeClientID     = "fakeClientID"
	FakeClientSecret = "fakeClientSecret"
)

// FakeOsuServer serves the token endpoint and the user endpoint of the osu! API
type FakeOsuServer struct {
	s *httptest.Server

	mu            sync.Mutex
	users         map[int]models.UserResponse
	failures      map[int]int
	tokenRequests int
	userRequests  []int
	tokenSeq      int
	tokenTTL      int
	currentToken  string
	lastTokenBody map[string]string
}

func NewFakeOsuServer() *FakeOsuServer {
	f := &FakeOsuServer{
		users:    make(map[int]models.UserResponse),
		failures: make(map[int]int),
		tokenTTL: 86400,
	}

	r := chi.NewRouter()
	r.Post("/oauth/token", f.tokenHandler)
	r.Route("/api/v2", func(r chi.Router) {
		r.Get("/users/{userID}/{ruleset}", f.userHandler)
	})

	f.s = httptest.NewServer(r)
	return f
}

func (f *FakeOsuServer) Close() {
	f.s.Close()
}

func (f *FakeOsuServer) BaseURL() string {
	return f.s.URL + "/api/v2"
}

func (f *FakeOsuServer) TokenURL() string {
	return f.s.URL + "/oauth/token"
}

// AddUser registers a user profile
func (f *FakeOsuServer) AddUser(u models.UserResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

// FailUser makes requests for userID answer with status
func (f *FakeOsuServer) FailUser(userID, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[userID] = status
}

// SetTokenTTL sets expires_in for subsequently issued tokens
func (f *FakeOsuServer) SetTokenTTL(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenTTL = seconds
}

func (f *FakeOsuServer) TokenRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenRequests
}

func (f *FakeOsuServer) LastTokenRequest() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenBody
}

// UserRequests returns the user ids requested, in order
func (f *FakeOsuServer) UserRequests() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.userRequests...)
}

func (f *FakeOsuServer) tokenHandler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tokenRequests++

	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
		return
	}
	f.lastTokenBody = body

	if body["client_id"] != FakeClientID || body["client_secret"] != FakeClientSecret {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}

	f.tokenSeq++
	f.currentToken = fmt.Sprintf("token-%d", f.tokenSeq)

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"token_type":   "Bearer",
		"expires_in":   f.tokenTTL,
		"access_token": f.currentToken,
	})
}

func (f *FakeOsuServer) userHandler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+f.currentToken || f.currentToken == "" {
		http.Error(w, `{"authentication":"basic"}`, http.StatusUnauthorized)
		return
	}

	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || r.URL.Query().Get("key") != "id" {
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
		return
	}
	f.userRequests = append(f.userRequests, userID)

	if status, ok := f.failures[userID]; ok {
		http.Error(w, `{"error":"failure"}`, status)
		return
	}

	u, ok := f.users[userID]
	if !ok {
		http.Error(w, `{"error":null}`, http.StatusNotFound)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(u)
}
