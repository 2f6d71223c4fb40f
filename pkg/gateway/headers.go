// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"log/slog"
	"net/http"

	"github.com/cobaltcore-dev/consolegw/pkg/keystone"
	"github.com/google/uuid"
)

const (
	HeaderAuthToken     = "X-Auth-Token"
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Openstack-Request-Id"
)

// CredentialSource provides the current credentials.
// It is implemented by keystone.CredentialStore.
type CredentialSource interface {
	Snapshot() keystone.Credentials
}

// Build the authentication headers for a request. The scoped token is used
// unless scoped is false. Both the bearer and the keystone header carry the
// same token, some services only read one of them. Without a token the
// headers are empty and the request goes out unauthenticated.
func AuthHeaders(creds keystone.Credentials, scoped bool) http.Header {
	token := creds.UnscopedToken
	if scoped {
		token = creds.ScopedToken
	}
	header := http.Header{}
	if token == nil || token.ID == "" {
		slog.Warn("no token available, sending request without authentication", "scoped", scoped)
		return header
	}
	header.Set(HeaderAuthorization, "Bearer "+token.ID)
	header.Set(HeaderAuthToken, token.ID)
	return header
}

func newRequestID() string {
	return "req-" + uuid.NewString()
}
