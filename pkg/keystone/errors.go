// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import "errors"

var (
	// Bad credentials, or keystone was not reachable while authenticating,
	// scoping or renewing a token.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// The catalog endpoint was not reachable or returned malformed data.
	ErrCatalogFetchFailed = errors.New("catalog fetch failed")
	// An operation needs a token that is not in the credential store.
	ErrNoCredentials = errors.New("no credentials")
)
