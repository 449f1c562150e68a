package helpers

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"market-data-server/src/logger"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("connection refused")
	up := NewUpstreamUnavailable("eod/AAPL.US", 0, base)
	wrapped := fmt.Errorf("daily job: %w", up)

	if !IsUpstreamError(wrapped) {
		t.Errorf("IsUpstreamError(wrapped) = false, want true")
	}
	if !errors.Is(wrapped, base) {
		t.Errorf("errors.Is(wrapped, base) = false, want true")
	}
	if IsPersistenceError(wrapped) {
		t.Errorf("IsPersistenceError(upstream) = true, want false")
	}
	if !IsUpstreamError(NewUpstreamRateLimited("companyfacts")) {
		t.Errorf("rate limited should classify as upstream")
	}
	if !IsPersistenceError(NewPersistenceError("upsert", base)) {
		t.Errorf("IsPersistenceError = false, want true")
	}
	if !IsValidationError(NewValidationError("bad %s", "ticker")) {
		t.Errorf("IsValidationError = false, want true")
	}
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := NewUpstreamUnavailable("news", 503, nil)
	if got := err.Error(); got != "upstream news returned status 503" {
		t.Errorf("Error() = %q", got)
	}
	var ue *UpstreamUnavailableError
	if !errors.As(err, &ue) || ue.StatusCode != 503 {
		t.Errorf("StatusCode not preserved: %+v", ue)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	log := logger.NewTestLogger(&bytes.Buffer{}, "test")
	calls := 0
	err := RetryWithBackoff(log, "open db", 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryWithBackoff: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	calls = 0
	err = RetryWithBackoff(log, "open db", 2, time.Millisecond, func() error {
		calls++
		return errors.New("down")
	})
	if err == nil || calls != 2 {
		t.Errorf("err = %v, calls = %d; want error after 2 calls", err, calls)
	}
}

func TestErrorHandlerRecover(t *testing.T) {
	var buf bytes.Buffer
	h := NewErrorHandler(logger.NewTestLogger(&buf, "jobs"))

	func() {
		defer h.Recover("price job")
		panic("boom")
	}()

	if !strings.Contains(buf.String(), "Recovered panic in price job") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestReadProcessStats(t *testing.T) {
	s := ReadProcessStats()
	if s.Goroutines < 1 || s.HeapAllocMB <= 0 || s.GoVersion == "" {
		t.Errorf("stats = %+v", s)
	}
}
