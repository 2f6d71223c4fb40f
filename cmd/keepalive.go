// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cobaltcore-dev/consolegw/pkg/console"
	"github.com/sapcc/go-bits/jobloop"
)

// Renew the tokens of the client that expire within the given duration,
// or all of them if force is set. Returns whether any token was renewed.
func renewTokens(ctx context.Context, c *console.Client, renewBefore time.Duration, force bool) (bool, error) {
	now := time.Now()
	creds := c.Credentials().Snapshot()
	if creds.UnscopedToken == nil && creds.ScopedToken == nil {
		return false, errors.New("session has no tokens, log in again")
	}
	renewed := false
	if creds.UnscopedToken != nil && (force || creds.UnscopedToken.ExpiresWithin(renewBefore, now)) {
		if _, err := c.Identity().RenewUnscopedToken(ctx); err != nil {
			return renewed, err
		}
		renewed = true
	}
	if creds.ScopedToken != nil && (force || creds.ScopedToken.ExpiresWithin(renewBefore, now)) {
		if _, err := c.Identity().RenewScopedToken(ctx); err != nil {
			return renewed, err
		}
		renewed = true
	}
	return renewed, nil
}

// Check the session tokens until the context is cancelled, renewing and
// persisting them before they expire. Metrics are served meanwhile.
func runKeepalive(ctx context.Context, a *app, interval, renewBefore time.Duration) error {
	c, err := a.restore(ctx)
	if err != nil {
		return err
	}
	go func() {
		if err := a.registry.Serve(ctx); err != nil {
			slog.Error("failed to serve metrics", "error", err)
		}
	}()
	for {
		keepaliveOnce(ctx, a, c, renewBefore)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(jobloop.DefaultJitter(interval)):
		}
	}
}

// Renew the expiring tokens and persist the session if any token changed,
// even when renewing another one failed.
func keepaliveOnce(ctx context.Context, a *app, c *console.Client, renewBefore time.Duration) {
	renewed, err := renewTokens(ctx, c, renewBefore, false)
	if err != nil {
		slog.Error("failed to renew session tokens", "error", err)
	}
	if renewed {
		if err := a.save(ctx, c); err != nil {
			slog.Error("failed to persist renewed session", "error", err)
		}
	} else if err == nil {
		slog.Debug("session tokens are fresh", "renewBefore", renewBefore)
	}
}
