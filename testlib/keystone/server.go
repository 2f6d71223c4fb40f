// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Keystone formats timestamps with microseconds.
const timeFormat = "2006-01-02T15:04:05.000000Z"

// Service in the catalog served by the fake keystone.
type Service struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Endpoints []Endpoint `json:"endpoints"`
}

// Endpoint of a service in the fake catalog.
type Endpoint struct {
	ID        string `json:"id"`
	Region    string `json:"region"`
	Interface string `json:"interface"`
	URL       string `json:"url"`
}

type issuedToken struct {
	user      string
	projectID string
}

// Server is a fake keystone v3 identity service.
//
// It serves POST /v3/auth/tokens for password and token grants, and
// GET /v3/auth/catalog. Fields may be changed between requests.
type Server struct {
	*httptest.Server

	mu sync.Mutex
	// Username -> password of the known users.
	Users map[string]string
	// Role names returned for project scoped tokens.
	Roles []string
	// Catalog returned by GET /v3/auth/catalog.
	Catalog []Service
	// If set, GET /v3/auth/catalog returns this body verbatim.
	CatalogBody string
	// If set, token requests fail with this status code.
	TokenStatus int
	// If set, catalog requests fail with this status code.
	CatalogStatus int
	// Time the catalog handler waits before responding.
	CatalogDelay time.Duration
	// Lifetime of issued tokens.
	TokenTTL time.Duration

	issued          map[string]issuedToken
	tokenCounter    atomic.Int64
	tokenRequests   atomic.Int64
	catalogRequests atomic.Int64
}

// Start a fake keystone with one user "admin" / "secret".
// The server is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		Users:    map[string]string{"admin": "secret"},
		Roles:    []string{"_member_", "admin"},
		TokenTTL: time.Hour,
		issued:   make(map[string]issuedToken),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v3/auth/tokens", s.handleTokens)
	mux.HandleFunc("GET /v3/auth/catalog", s.handleCatalog)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// URL of the keystone v3 API.
func (s *Server) IdentityURL() string {
	return s.URL + "/v3"
}

// Number of requests to POST /v3/auth/tokens so far.
func (s *Server) TokenRequests() int {
	return int(s.tokenRequests.Load())
}

// Number of requests to GET /v3/auth/catalog so far.
func (s *Server) CatalogRequests() int {
	return int(s.catalogRequests.Load())
}

// Set fields of the server while no request is being handled.
func (s *Server) Configure(f func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s)
}

// Check if the token was issued by this server.
func (s *Server) Issued(tokenID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.issued[tokenID]
	return ok
}

type authRequest struct {
	Auth struct {
		Identity struct {
			Methods  []string `json:"methods"`
			Password struct {
				User struct {
					Name     string `json:"name"`
					Password string `json:"password"`
				} `json:"user"`
			} `json:"password"`
			Token struct {
				ID string `json:"id"`
			} `json:"token"`
		} `json:"identity"`
		Scope struct {
			Project struct {
				ID string `json:"id"`
			} `json:"project"`
		} `json:"scope"`
	} `json:"auth"`
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	s.tokenRequests.Add(1)
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TokenStatus != 0 {
		writeError(w, s.TokenStatus, "token request rejected")
		return
	}
	var user string
	methods := req.Auth.Identity.Methods
	switch {
	case len(methods) == 1 && methods[0] == "password":
		name := req.Auth.Identity.Password.User.Name
		password, ok := s.Users[name]
		if !ok || password != req.Auth.Identity.Password.User.Password {
			writeError(w, http.StatusUnauthorized, "The request you have made requires authentication.")
			return
		}
		user = name
	case len(methods) == 1 && methods[0] == "token":
		issued, ok := s.issued[req.Auth.Identity.Token.ID]
		if !ok {
			writeError(w, http.StatusNotFound, "Could not find token.")
			return
		}
		user = issued.user
	default:
		writeError(w, http.StatusBadRequest, "unsupported auth methods")
		return
	}

	projectID := req.Auth.Scope.Project.ID
	id := fmt.Sprintf("token-%d", s.tokenCounter.Add(1))
	s.issued[id] = issuedToken{user: user, projectID: projectID}

	now := time.Now().UTC()
	token := map[string]any{
		"issued_at":  now.Format(timeFormat),
		"expires_at": now.Add(s.TokenTTL).Format(timeFormat),
		"methods":    methods,
		"user": map[string]any{
			"id":     "user-" + user,
			"name":   user,
			"domain": map[string]any{"id": "default", "name": "Default"},
		},
	}
	if projectID != "" {
		roles := make([]map[string]any, 0, len(s.Roles))
		for i, name := range s.Roles {
			roles = append(roles, map[string]any{"id": fmt.Sprintf("role-%d", i), "name": name})
		}
		token["roles"] = roles
		token["project"] = map[string]any{
			"id":     projectID,
			"name":   "project-" + projectID,
			"domain": map[string]any{"id": "default", "name": "Default"},
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Subject-Token", id)
	w.WriteHeader(http.StatusCreated)
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]any{"token": token})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	s.catalogRequests.Add(1)
	s.mu.Lock()
	delay := s.CatalogDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CatalogStatus != 0 {
		writeError(w, s.CatalogStatus, "catalog request rejected")
		return
	}
	if _, ok := s.issued[r.Header.Get("X-Auth-Token")]; !ok {
		writeError(w, http.StatusUnauthorized, "The request you have made requires authentication.")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if s.CatalogBody != "" {
		//nolint:errcheck
		w.Write([]byte(s.CatalogBody))
		return
	}
	catalog := s.Catalog
	if catalog == nil {
		catalog = []Service{}
	}
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]any{"catalog": catalog})
}

// Keystone error envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	//nolint:errcheck
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
			"title":   http.StatusText(code),
		},
	})
}
