// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"
)

var (
	// The requested service or interface is not in the catalog of the
	// active region.
	ErrEndpointNotAvailable = errors.New("endpoint not available")
	// A service answered with a non-2xx status code.
	ErrUpstreamRequestFailed = errors.New("upstream request failed")
	// A paginated collection links back to a page that was already read,
	// or has more pages than BasicGetAll follows.
	ErrPaginationLoop = errors.New("pagination does not terminate")
)

// EndpointNotAvailableError is returned when a service has no endpoint with
// the requested interface in the active region.
type EndpointNotAvailableError struct {
	Service   string
	Interface string
	Region    string
}

func (e *EndpointNotAvailableError) Error() string {
	if e.Region == "" {
		return fmt.Sprintf("%s endpoint (%s) not available: no regions in catalog", e.Service, e.Interface)
	}
	return fmt.Sprintf("%s endpoint (%s) not available in region %s", e.Service, e.Interface, e.Region)
}

func (e *EndpointNotAvailableError) Is(target error) bool {
	return target == ErrEndpointNotAvailable
}

// UpstreamRequestFailedError is returned when a service answered with a
// non-2xx status code. Message is extracted from the response body,
// whatever error envelope the service uses.
type UpstreamRequestFailedError struct {
	Method     string
	URL        string
	StatusCode int
	// Human readable message.
	Message string
	// The error object from the response body, if the body had one that
	// could not be reduced to a string.
	Detail any
	// Raw response body.
	Body []byte
	// Request id sent along with the request.
	RequestID string
}

func (e *UpstreamRequestFailedError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

func (e *UpstreamRequestFailedError) Is(target error) bool {
	return target == ErrUpstreamRequestFailed
}
