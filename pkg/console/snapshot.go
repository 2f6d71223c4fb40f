// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"log/slog"

	"github.com/cobaltcore-dev/consolegw/pkg/keystone"
)

// Snapshot is the persisted form of a session.
type Snapshot struct {
	KeystoneEndpoint string                  `json:"keystoneEndpoint"`
	UnscopedToken    *keystone.Token         `json:"unscopedToken,omitempty"`
	ScopedToken      *keystone.Token         `json:"scopedToken,omitempty"`
	Catalog          keystone.ServiceCatalog `json:"catalog,omitempty"`
	ActiveProjectID  string                  `json:"activeProjectId,omitempty"`
	ActiveRegion     string                  `json:"activeRegion,omitempty"`
}

// Capture the credentials and catalog of the session.
func (c *Client) Serialize() Snapshot {
	creds := c.identity.Credentials().Snapshot()
	catalog, _, _ := c.identity.Catalog().Current()
	return Snapshot{
		KeystoneEndpoint: c.opts.KeystoneEndpoint,
		UnscopedToken:    creds.UnscopedToken,
		ScopedToken:      creds.ScopedToken,
		Catalog:          catalog,
		ActiveProjectID:  creds.ActiveProjectID,
		ActiveRegion:     creds.ActiveRegion,
	}
}

// Create a client from a persisted session without authenticating again.
// The keystone endpoint of the snapshot is used unless the options name one.
// Without a persisted catalog, it is fetched on first use.
func Hydrate(snapshot Snapshot, opts Options) (*Client, error) {
	if opts.KeystoneEndpoint == "" {
		opts.KeystoneEndpoint = snapshot.KeystoneEndpoint
	}
	store := keystone.NewCredentialStore()
	store.Restore(keystone.Credentials{
		UnscopedToken:   snapshot.UnscopedToken,
		ScopedToken:     snapshot.ScopedToken,
		ActiveProjectID: snapshot.ActiveProjectID,
		ActiveRegion:    snapshot.ActiveRegion,
	})
	catalog := keystone.NewCatalog()
	if snapshot.Catalog != nil {
		catalog.Replace(snapshot.Catalog)
	}
	slog.Debug("hydrated session", "keystone", opts.KeystoneEndpoint, "project", snapshot.ActiveProjectID, "catalog", snapshot.Catalog != nil)
	return newClient(opts, store, catalog)
}

// Get the regions of the catalog, fetching it first if there is none yet.
func (c *Client) Regions(ctx context.Context) ([]string, error) {
	index, err := c.identity.RegionMap(ctx)
	if err != nil {
		return nil, err
	}
	return index.Regions(), nil
}
