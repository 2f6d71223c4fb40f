// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"testing"
	"time"
)

func TestToken_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	token := Token{ID: "t", ExpiresAt: now.Add(10 * time.Minute)}

	if token.Expired(now) {
		t.Error("expected token to be valid")
	}
	if !token.Expired(now.Add(10 * time.Minute)) {
		t.Error("expected token to be expired at its expiry")
	}
	if !token.ExpiresWithin(15*time.Minute, now) {
		t.Error("expected token to expire within 15 minutes")
	}
	if token.ExpiresWithin(5*time.Minute, now) {
		t.Error("expected token not to expire within 5 minutes")
	}
	if (Token{ID: "t"}).Expired(now) {
		t.Error("expected token without expiry to be valid")
	}
}

func TestCredentialStore(t *testing.T) {
	store := NewCredentialStore()
	if _, ok := store.UnscopedToken(); ok {
		t.Fatal("expected no unscoped token in a new store")
	}

	store.setUnscopedToken(Token{ID: "unscoped"})
	store.setScopedToken(Token{ID: "scoped"}, "p1")
	store.SetActiveRegion("r1")

	creds := store.Snapshot()
	if creds.UnscopedToken.ID != "unscoped" || creds.ScopedToken.ID != "scoped" {
		t.Errorf("unexpected tokens: %+v", creds)
	}
	if creds.ActiveProjectID != "p1" || creds.ActiveRegion != "r1" {
		t.Errorf("unexpected selection: %+v", creds)
	}

	// Snapshots must not alias the stored tokens.
	creds.ScopedToken.ID = "modified"
	if token, _ := store.ScopedToken(); token.ID != "scoped" {
		t.Errorf("expected stored token to be unchanged, got %q", token.ID)
	}

	store.Clear()
	if _, ok := store.ScopedToken(); ok {
		t.Error("expected no scoped token after clear")
	}
	if store.ActiveProjectID() != "" {
		t.Error("expected no project after clear")
	}
	if store.ActiveRegion() != "r1" {
		t.Error("expected region selection to survive clear")
	}
}

func TestCredentialStore_Restore(t *testing.T) {
	token := &Token{ID: "scoped"}
	store := NewCredentialStore()
	store.Restore(Credentials{ScopedToken: token, ActiveProjectID: "p1"})

	token.ID = "modified"
	got, ok := store.ScopedToken()
	if !ok || got.ID != "scoped" {
		t.Errorf("expected restored token to be a copy, got %+v", got)
	}
	if active, _ := store.activeToken(); active.ID != "scoped" {
		t.Errorf("expected scoped token to be active, got %q", active.ID)
	}
}
