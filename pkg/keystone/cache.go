// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package keystone

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Immutable view of the catalog together with its derived region map.
type catalogState struct {
	// Sequence number of the fetch (or replacement) that produced this state.
	seq     uint64
	loaded  bool
	catalog ServiceCatalog
	index   RegionMap
}

// Catalog holds the service catalog of a session. Readers always see either
// the previous or the next catalog, never a mix of both. The region map is
// derived from the catalog whenever it is replaced.
type Catalog struct {
	state atomic.Pointer[catalogState]
	seq   atomic.Uint64
	group singleflight.Group
}

// Create an empty catalog holder.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Get the current catalog and its region map.
// Returns false if no catalog was fetched yet.
func (c *Catalog) Current() (ServiceCatalog, RegionMap, bool) {
	st := c.state.Load()
	if st == nil || !st.loaded {
		return nil, RegionMap{}, false
	}
	return st.catalog, st.index, true
}

// Replace the catalog with the given one, e.g. from a persisted session.
func (c *Catalog) Replace(catalog ServiceCatalog) {
	c.store(c.newState(catalog))
}

// Drop the catalog. Fetches that were started before are discarded
// when they complete.
func (c *Catalog) Invalidate() {
	c.store(&catalogState{seq: c.seq.Add(1)})
}

func (c *Catalog) newState(catalog ServiceCatalog) *catalogState {
	return &catalogState{
		seq:     c.seq.Add(1),
		loaded:  true,
		catalog: catalog,
		index:   IndexByRegion(catalog),
	}
}

// Store the state unless a newer one was stored in the meantime.
func (c *Catalog) store(st *catalogState) {
	for {
		old := c.state.Load()
		if old != nil && old.seq > st.seq {
			return
		}
		if c.state.CompareAndSwap(old, st) {
			return
		}
	}
}

// Run the fetch at most once per key concurrently and store its result.
// The fetch is detached from the cancellation of ctx: if the caller gives
// up, the fetch still completes and fills the cache for the other waiters.
func (c *Catalog) fetch(
	ctx context.Context,
	key string,
	fetch func(context.Context) (ServiceCatalog, error),
) (*catalogState, error) {

	return c.do(ctx, key, false, fetch)
}

// Like fetch, but only if no catalog is loaded when the fetch would start.
// Callers that lost the race against another fetch get its result instead
// of fetching again.
func (c *Catalog) fetchMissing(
	ctx context.Context,
	key string,
	fetch func(context.Context) (ServiceCatalog, error),
) (*catalogState, error) {

	if st := c.state.Load(); st != nil && st.loaded {
		return st, nil
	}
	return c.do(ctx, "missing:"+key, true, fetch)
}

func (c *Catalog) do(
	ctx context.Context,
	key string,
	onlyMissing bool,
	fetch func(context.Context) (ServiceCatalog, error),
) (*catalogState, error) {

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if onlyMissing {
			if st := c.state.Load(); st != nil && st.loaded {
				return st, nil
			}
		}
		// Take the sequence number before fetching, so that a catalog that
		// is replaced while this fetch runs is not overwritten.
		seq := c.seq.Add(1)
		catalog, err := fetch(detached)
		if err != nil {
			return nil, err
		}
		st := &catalogState{
			seq:     seq,
			loaded:  true,
			catalog: catalog,
			index:   IndexByRegion(catalog),
		}
		c.store(st)
		return st, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*catalogState), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
