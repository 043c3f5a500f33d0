package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
)

func setupTestServer() *httptest.Server {
	r := chi.NewRouter()
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent") + "|" + r.Header.Get("Referer") + "|" + r.Header.Get("X-Api-Key")))
	})
	r.Get("/with space/file.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("escaped"))
	})
	r.Get("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return httptest.NewServer(r)
}

func TestClient_Get(t *testing.T) {
	server := setupTestServer()
	defer server.Close()

	c := NewClient(WithUserAgent("dezoom-test"), WithHeaders(map[string]string{"X-Api-Key": "secret"}))

	data, err := c.GetBytes(context.Background(), server.URL+"/ok")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := string(data); got != "dezoom-test|"+DefaultReferer+"|secret" {
		t.Errorf("Unexpected headers echoed: %q", got)
	}

	data, err = c.GetBytes(context.Background(), server.URL+"/with space/file.txt")
	if err != nil {
		t.Fatalf("Unexpected error for path with space: %v", err)
	}
	if string(data) != "escaped" {
		t.Errorf("Expected 'escaped', got %q", data)
	}
}

func TestClient_GetErrors(t *testing.T) {
	server := setupTestServer()
	defer server.Close()

	c := NewClient()

	for _, path := range []string{"/missing", "/gone"} {
		_, err := c.GetBytes(context.Background(), server.URL+path)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", path, err)
		}
	}

	_, err := c.GetBytes(context.Background(), server.URL+"/broken")
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("Expected *StatusError, got %v", err)
	}
	if serr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", serr.StatusCode)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("A server error must not be reported as not found")
	}
}

func TestRetry_Budget(t *testing.T) {
	r := Retry{Attempts: 5, BaseDelay: time.Millisecond}
	transient := errors.New("connection reset")

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("Expected the last error, got %v", err)
	}
	if calls != 5 {
		t.Errorf("Expected 5 attempts, got %d", calls)
	}

	calls = 0
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return transient
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Expected success on the third attempt, got err=%v calls=%d", err, calls)
	}
}

func TestRetry_NotFoundIsPermanent(t *testing.T) {
	calls := 0
	err := DefaultRetry.Do(context.Background(), func(context.Context) error {
		calls++
		return ErrNotFound
	})
	if !errors.Is(err, ErrNotFound) || calls != 1 {
		t.Errorf("Expected a single attempt returning ErrNotFound, got err=%v calls=%d", err, calls)
	}
}

func TestRetry_Backoff(t *testing.T) {
	r := Retry{Attempts: 4, BaseDelay: 10 * time.Millisecond}

	var stamps []time.Time
	r.Do(context.Background(), func(context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("fail")
	})
	if len(stamps) != 4 {
		t.Fatalf("Expected 4 attempts, got %d", len(stamps))
	}
	// 10ms, 20ms, 40ms
	for i, want := range []time.Duration{10, 20, 40} {
		if gap := stamps[i+1].Sub(stamps[i]); gap < want*time.Millisecond {
			t.Errorf("Gap %d was %v, expected at least %v", i, gap, want*time.Millisecond)
		}
	}
}

func TestRetry_Policy(t *testing.T) {
	b := Retry{Attempts: 4, BaseDelay: 10 * time.Millisecond}.Policy(context.Background())
	b.Reset()
	for i, want := range []time.Duration{10, 20, 40} {
		if got := b.NextBackOff(); got != want*time.Millisecond {
			t.Errorf("Delay %d: expected %v, got %v", i, want*time.Millisecond, got)
		}
	}
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Errorf("Expected the budget to be spent after 3 retries, got %v", got)
	}

	single := Retry{}.Policy(context.Background())
	single.Reset()
	if got := single.NextBackOff(); got != backoff.Stop {
		t.Errorf("A zero budget must still allow exactly one attempt, got delay %v", got)
	}
}

func TestRetry_WrappedNotFoundIsPermanent(t *testing.T) {
	calls := 0
	err := DefaultRetry.Do(context.Background(), func(context.Context) error {
		calls++
		return fmt.Errorf("tile 3-0-0: %w", ErrNotFound)
	})
	if !errors.Is(err, ErrNotFound) || calls != 1 {
		t.Errorf("Expected a single attempt returning ErrNotFound, got err=%v calls=%d", err, calls)
	}
}

func TestRetry_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retry{Attempts: 5, BaseDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func(context.Context) error { return errors.New("fail") })
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Retry did not stop after cancellation")
	}
}
