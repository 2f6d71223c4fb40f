// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"

	"github.com/cobaltcore-dev/consolegw/pkg/console"
	"github.com/zalando/go-keyring"
)

// KeyringStore keeps the session in the keyring of the operating system.
// Some keyrings limit the size of secrets, so the catalog is not stored;
// a restored client fetches it on first use.
type KeyringStore struct {
	// Keyring service, defaults to "consolegw".
	Service string
	// Keyring user, usually the session name.
	User string
}

func (s KeyringStore) service() string {
	if s.Service == "" {
		return "consolegw"
	}
	return s.Service
}

func (s KeyringStore) Load(_ context.Context) (console.Snapshot, error) {
	data, err := keyring.Get(s.service(), s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return console.Snapshot{}, ErrNoSession
	}
	if err != nil {
		return console.Snapshot{}, err
	}
	return decode([]byte(data))
}

func (s KeyringStore) Save(_ context.Context, snapshot console.Snapshot) error {
	snapshot.Catalog = nil
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	return keyring.Set(s.service(), s.User, string(data))
}

func (s KeyringStore) Delete(_ context.Context) error {
	err := keyring.Delete(s.service(), s.User)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
