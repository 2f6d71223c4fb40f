// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"sync"
	"time"
)

// Token is a keystone bearer token together with the metadata keystone
// returned when it was issued. Tokens are never modified after issuance,
// a renewal replaces the whole value.
type Token struct {
	// The opaque token string, as returned in the X-Subject-Token header.
	ID string `json:"id"`
	// When keystone issued the token.
	IssuedAt time.Time `json:"issuedAt,omitzero"`
	// When keystone will stop accepting the token.
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

// Check if the token is expired at the given point in time.
// Tokens without a known expiry never expire from our point of view.
func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// Check if the token expires within the given duration from now.
func (t Token) ExpiresWithin(d time.Duration, now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return t.ExpiresAt.Sub(now) <= d
}

// Credentials is a consistent snapshot of the session credentials.
type Credentials struct {
	UnscopedToken   *Token `json:"unscopedToken,omitempty"`
	ScopedToken     *Token `json:"scopedToken,omitempty"`
	ActiveProjectID string `json:"activeProjectId,omitempty"`
	ActiveRegion    string `json:"activeRegion,omitempty"`
}

// CredentialStore is the single owner of the session credentials.
// All reads return snapshots, so a concurrent renewal can never be observed
// half-applied.
type CredentialStore struct {
	mu    sync.RWMutex
	creds Credentials
}

// Create an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Get a snapshot of all credentials.
func (s *CredentialStore) Snapshot() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// Get the unscoped token, if there is one.
func (s *CredentialStore) UnscopedToken() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.UnscopedToken == nil {
		return Token{}, false
	}
	return *s.creds.UnscopedToken, true
}

// Get the scoped token, if there is one.
func (s *CredentialStore) ScopedToken() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.ScopedToken == nil {
		return Token{}, false
	}
	return *s.creds.ScopedToken, true
}

// Get the project the scoped token belongs to.
func (s *CredentialStore) ActiveProjectID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.ActiveProjectID
}

// Get the region the user selected. Empty if no region was selected yet.
func (s *CredentialStore) ActiveRegion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.ActiveRegion
}

// Select the region whose catalog slice is used to resolve endpoints.
// Switching regions does not refetch the catalog.
func (s *CredentialStore) SetActiveRegion(region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.ActiveRegion = region
}

// Replace all credentials at once, e.g. when rehydrating a persisted session.
func (s *CredentialStore) Restore(creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{
		UnscopedToken:   copyToken(creds.UnscopedToken),
		ScopedToken:     copyToken(creds.ScopedToken),
		ActiveProjectID: creds.ActiveProjectID,
		ActiveRegion:    creds.ActiveRegion,
	}
}

// Drop all tokens and the project selection. The region selection is kept.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{ActiveRegion: s.creds.ActiveRegion}
}

func (s *CredentialStore) setUnscopedToken(t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.UnscopedToken = &t
}

func (s *CredentialStore) setScopedToken(t Token, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds.ScopedToken = &t
	s.creds.ActiveProjectID = projectID
}

// Token used for catalog fetches: the scoped one if present.
func (s *CredentialStore) activeToken() (Token, bool) {
	if t, ok := s.ScopedToken(); ok {
		return t, true
	}
	return s.UnscopedToken()
}

func copyToken(t *Token) *Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
