// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sapcc/go-api-declarations/bininfo"
	"github.com/sapcc/go-bits/httpext"
	"github.com/sapcc/go-bits/must"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	bininfo.HandleVersionArgument()

	// Set runtime concurrency to match CPU limit imposed by Kubernetes,
	// relevant when keepalive runs as a sidecar.
	undoMaxprocs := must.Return(maxprocs.Set(maxprocs.Logger(slog.Debug)))

	// Override User-Agent header for all requests made by this process
	// (logs will show e.g. "consolegw/d0c9faa" instead of "Go-http-client/2.0")
	wrap := httpext.WrapTransport(&http.DefaultTransport)
	wrap.SetOverrideUserAgent(bininfo.Component(), bininfo.VersionOr("rolling"))

	// This context will gracefully shutdown when the process receives the
	// standard shutdown signal SIGINT, with a 10-second delay to allow
	// in-flight requests and session saves to finish.
	ctx := httpext.ContextWithSIGINT(context.Background(), 10*time.Second)

	err := newRootCommand().ExecuteContext(ctx)
	undoMaxprocs()
	if err != nil {
		os.Exit(1)
	}
}
