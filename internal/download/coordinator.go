// Package download fetches the tiles of one zoom level concurrently and
// hands them out strictly in submission order.
package download

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/kiesman99/dezoom/internal/fetch"
	"github.com/kiesman99/dezoom/internal/logging"
	"github.com/kiesman99/dezoom/internal/progress"
	"github.com/kiesman99/dezoom/pkg/tile"
)

// DefaultConcurrency is the number of simultaneous tile downloads.
const DefaultConcurrency = 16

// Config configures a Coordinator.
type Config struct {
	Fetcher     Fetcher
	Dir         string // scratch directory receiving the tiles
	Ext         string
	Concurrency int
	Retry       fetch.Retry
	Progress    *progress.Tracker // optional
}

// Coordinator runs a bounded pool of fetchers.
type Coordinator struct {
	cfg Config
}

// NewCoordinator creates a coordinator, filling in defaults.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = fetch.DefaultRetry
	}
	if cfg.Ext == "" {
		cfg.Ext = tile.DefaultExt
	}
	return &Coordinator{cfg: cfg}
}

// FetchAll starts fetching addrs and returns the stream of their results.
// The stream yields exactly one result per address, in the order of addrs,
// while up to Concurrency fetches run ahead of the consumer.
func (c *Coordinator) FetchAll(ctx context.Context, addrs []tile.Address) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		slots:  make([]slot, len(addrs)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for i := range s.slots {
		s.slots[i].ready = make(chan struct{})
	}

	p := pool.New().WithMaxGoroutines(c.cfg.Concurrency).WithContext(ctx)
	go func() {
		defer close(s.done)
		for i, addr := range addrs {
			if ctx.Err() != nil {
				break
			}
			p.Go(func(ctx context.Context) error {
				s.fill(i, c.fetch(ctx, addr))
				return nil
			})
		}
		p.Wait()
	}()
	return s
}

func (c *Coordinator) fetch(ctx context.Context, addr tile.Address) tile.Result {
	log := logging.Logger()
	dst := LocalPath(c.cfg.Dir, addr, c.cfg.Ext)
	log.Debug("loading tile", "col", addr.Col, "row", addr.Row)

	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		return c.cfg.Fetcher.Fetch(ctx, addr, dst)
	})
	if c.cfg.Progress != nil {
		c.cfg.Progress.Downloaded()
	}

	switch {
	case err == nil:
		return tile.Result{Address: addr, Path: dst}
	case ctx.Err() != nil:
		return tile.Result{Address: addr, Missing: true, Err: ctx.Err()}
	case errors.Is(err, fetch.ErrNotFound):
		log.Warn("tile does not exist on the server", "tile", addr.String(), "col", addr.Col, "row", addr.Row, "err", err)
	default:
		log.Warn("giving up on tile", "tile", addr.String(), "col", addr.Col, "row", addr.Row, "err", err)
	}
	return tile.Result{Address: addr, Missing: true, Err: err}
}

type slot struct {
	ready  chan struct{}
	result tile.Result
}

// Stream is the ordered output of FetchAll. It is consumed by a single
// goroutine.
type Stream struct {
	slots  []slot
	next   int
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *Stream) fill(i int, r tile.Result) {
	s.slots[i].result = r
	close(s.slots[i].ready)
}

// Len is the number of results the stream yields.
func (s *Stream) Len() int {
	return len(s.slots)
}

// Next blocks until the next result in submission order is available.
// It returns io.EOF after the last result.
func (s *Stream) Next(ctx context.Context) (tile.Result, error) {
	if s.next >= len(s.slots) {
		return tile.Result{}, io.EOF
	}

	sl := &s.slots[s.next]
	select {
	case <-sl.ready:
	case <-ctx.Done():
		return tile.Result{}, ctx.Err()
	case <-s.done:
		// The dispatcher stopped early; this slot may never be filled.
		select {
		case <-sl.ready:
		default:
			return tile.Result{}, context.Canceled
		}
	}

	s.next++
	r := sl.result
	sl.result = tile.Result{}
	return r, nil
}

// Close stops issuing downloads and waits for in-flight ones to return.
func (s *Stream) Close() {
	s.once.Do(s.cancel)
	<-s.done
}
