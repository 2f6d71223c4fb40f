// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cobaltcore-dev/consolegw/pkg/console"
)

// FileStore keeps the session in a JSON file only readable by the owner.
type FileStore struct {
	Path string
}

// Path of the session file in the user configuration directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "consolegw", "session.json"), nil
}

func (s FileStore) Load(_ context.Context) (console.Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return console.Snapshot{}, ErrNoSession
	}
	if err != nil {
		return console.Snapshot{}, err
	}
	return decode(data)
}

// Save the session. The file is replaced atomically.
func (s FileStore) Save(_ context.Context, snapshot console.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// CreateTemp creates the file with mode 0600.
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

func (s FileStore) Delete(_ context.Context) error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
