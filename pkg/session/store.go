// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

// Package session persists console sessions, so that a client can be
// hydrated without authenticating again.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cobaltcore-dev/consolegw/pkg/console"
)

// Returned by Store.Load when no session was saved.
var ErrNoSession = errors.New("no session stored")

// Store loads and saves a single session.
type Store interface {
	Load(ctx context.Context) (console.Snapshot, error)
	Save(ctx context.Context, snapshot console.Snapshot) error
	// Delete the stored session. Deleting a missing session is no error.
	Delete(ctx context.Context) error
}

func encode(snapshot console.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (console.Snapshot, error) {
	var snapshot console.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return console.Snapshot{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return snapshot, nil
}

// Load the session from the store and hydrate a client from it.
func Restore(ctx context.Context, store Store, opts console.Options) (*console.Client, error) {
	snapshot, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return console.Hydrate(snapshot, opts)
}
