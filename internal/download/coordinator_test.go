package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/afero"

	"github.com/kiesman99/dezoom/internal/fetch"
	"github.com/kiesman99/dezoom/internal/progress"
	"github.com/kiesman99/dezoom/pkg/tile"
)

// fakeFetcher sleeps per tile and records concurrency.
type fakeFetcher struct {
	delay    func(tile.Address) time.Duration
	fail     func(tile.Address, int) error
	inFlight atomic.Int32
	peak     atomic.Int32

	mu    sync.Mutex
	calls map[tile.Address]int
}

func (f *fakeFetcher) Fetch(ctx context.Context, addr tile.Address, dst string) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[tile.Address]int)
	}
	f.calls[addr]++
	attempt := f.calls[addr]
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(addr)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail != nil {
		return f.fail(addr, attempt)
	}
	return nil
}

func testAddresses(t *testing.T) []tile.Address {
	t.Helper()
	g, err := tile.NewGeometry(tile.Properties{Width: 2679, Height: 4000, TileSize: 256})
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}
	var addrs []tile.Address
	for level := 0; level <= g.MaxZoom(); level++ {
		addrs = append(addrs, g.Addresses(level)...)
	}
	return addrs
}

func drain(t *testing.T, s *Stream) []tile.Result {
	t.Helper()
	var results []tile.Result
	for {
		r, err := s.Next(context.Background())
		if err == io.EOF {
			return results
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		results = append(results, r)
	}
}

func TestFetchAll_PreservesOrder(t *testing.T) {
	addrs := testAddresses(t)
	if len(addrs) != 241 {
		t.Fatalf("Expected 241 addresses, got %d", len(addrs))
	}

	// Early tiles are the slowest so that later ones finish first.
	f := &fakeFetcher{delay: func(a tile.Address) time.Duration {
		return time.Duration((a.Index*7)%13) * time.Millisecond
	}}
	tracker := progress.New(len(addrs))
	c := NewCoordinator(Config{Fetcher: f, Dir: "/tiles", Concurrency: 16, Progress: tracker})

	s := c.FetchAll(context.Background(), addrs)
	defer s.Close()
	results := drain(t, s)

	if len(results) != len(addrs) {
		t.Fatalf("Expected %d results, got %d", len(addrs), len(results))
	}
	for i, r := range results {
		if r.Address != addrs[i] {
			t.Fatalf("Result %d: expected %v, got %v", i, addrs[i], r.Address)
		}
		if r.Missing {
			t.Errorf("Result %d unexpectedly missing: %v", i, r.Err)
		}
		if want := LocalPath("/tiles", addrs[i], "jpg"); r.Path != want {
			t.Errorf("Result %d: expected path %s, got %s", i, want, r.Path)
		}
	}
	if peak := f.peak.Load(); peak > 16 {
		t.Errorf("Expected at most 16 concurrent fetches, saw %d", peak)
	}
	if got := tracker.Snapshot().Downloaded; got != len(addrs) {
		t.Errorf("Expected %d downloads counted, got %d", len(addrs), got)
	}
}

func TestFetchAll_SlowHeadBlocksConsumer(t *testing.T) {
	addrs := testAddresses(t)[:20]
	release := make(chan struct{})
	f := &fakeFetcher{}
	f.fail = func(a tile.Address, _ int) error {
		if a == addrs[0] {
			<-release
		}
		return nil
	}
	c := NewCoordinator(Config{Fetcher: f, Concurrency: 4})
	s := c.FetchAll(context.Background(), addrs)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected Next to block on the first slot, got %v", err)
	}

	close(release)
	results := drain(t, s)
	if len(results) != 20 || results[0].Address != addrs[0] {
		t.Errorf("Expected all 20 results starting with the first address, got %d", len(results))
	}
}

func TestFetchAll_MissingTiles(t *testing.T) {
	addrs := testAddresses(t)
	transient := errors.New("connection reset")

	f := &fakeFetcher{fail: func(a tile.Address, attempt int) error {
		switch {
		case a == addrs[10]:
			return fmt.Errorf("tile %s: %w", a, fetch.ErrNotFound)
		case a == addrs[20]:
			return transient
		case a == addrs[30] && attempt < 3:
			return transient
		}
		return nil
	}}
	c := NewCoordinator(Config{
		Fetcher:     f,
		Concurrency: 8,
		Retry:       fetch.Retry{Attempts: 5, BaseDelay: time.Millisecond},
	})

	s := c.FetchAll(context.Background(), addrs)
	defer s.Close()
	results := drain(t, s)

	if len(results) != len(addrs) {
		t.Fatalf("Expected %d results, got %d", len(addrs), len(results))
	}
	for i, r := range results {
		wantMissing := i == 10 || i == 20
		if r.Missing != wantMissing {
			t.Errorf("Result %d: missing = %v, expected %v (err %v)", i, r.Missing, wantMissing, r.Err)
		}
	}
	if !errors.Is(results[10].Err, fetch.ErrNotFound) {
		t.Errorf("Expected not found error, got %v", results[10].Err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n := f.calls[addrs[10]]; n != 1 {
		t.Errorf("Not found tiles must not be retried, got %d attempts", n)
	}
	if n := f.calls[addrs[20]]; n != 5 {
		t.Errorf("Expected 5 attempts for a failing tile, got %d", n)
	}
	if n := f.calls[addrs[30]]; n != 3 {
		t.Errorf("Expected 3 attempts for a flaky tile, got %d", n)
	}
}

func TestFetchAll_Cancel(t *testing.T) {
	addrs := testAddresses(t)
	f := &fakeFetcher{delay: func(tile.Address) time.Duration { return 20 * time.Millisecond }}
	c := NewCoordinator(Config{Fetcher: f, Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	s := c.FetchAll(ctx, addrs)

	if _, err := s.Next(ctx); err != nil {
		t.Fatalf("First result failed: %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after cancellation")
	}

	f.mu.Lock()
	started := len(f.calls)
	f.mu.Unlock()
	if started >= len(addrs) {
		t.Errorf("Expected cancellation to stop new downloads, %d of %d started", started, len(addrs))
	}

	// Slots filled before cancellation may still be read; the first slot
	// that was never submitted ends the stream.
	var err error
	for err == nil {
		_, err = s.Next(context.Background())
	}
	if err == io.EOF {
		t.Error("Expected the stream to end with a cancellation error, not EOF")
	}
}

func TestLocalFetcher(t *testing.T) {
	fs := afero.NewMemMapFs()
	addr := tile.Address{Level: 2, Col: 1, Row: 3}
	dst := LocalPath("/store/painting", addr, "jpg")

	if dst != "/store/painting/1_3.jpg" {
		t.Errorf("Unexpected local path %s", dst)
	}

	f := NewLocalFetcher(fs)
	if err := f.Fetch(context.Background(), addr, dst); !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an absent tile, got %v", err)
	}

	afero.WriteFile(fs, dst, []byte{0xFF, 0xD8}, 0o644)
	if err := f.Fetch(context.Background(), addr, dst); err != nil {
		t.Errorf("Expected stored tile to be found, got %v", err)
	}
}

func TestHTTPFetcher(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/zoom/TileGroup0/2-1-3.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tile-2-1-3"))
	})
	server := httptest.NewServer(r)
	defer server.Close()

	fs := afero.NewMemMapFs()
	f := NewHTTPFetcher(fetch.NewClient(), fs, server.URL+"/zoom/", "jpg")

	addr := tile.Address{Level: 2, Col: 1, Row: 3}
	if err := f.Fetch(context.Background(), addr, "/tmp/1_3.jpg"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	data, err := afero.ReadFile(fs, "/tmp/1_3.jpg")
	if err != nil || string(data) != "tile-2-1-3" {
		t.Errorf("Unexpected stored tile %q (err %v)", data, err)
	}

	missing := tile.Address{Level: 2, Col: 0, Row: 0}
	if err := f.Fetch(context.Background(), missing, "/tmp/0_0.jpg"); !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if ok, _ := afero.Exists(fs, "/tmp/0_0.jpg"); ok {
		t.Error("No file should be created for a missing tile")
	}
}
