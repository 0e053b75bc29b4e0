package quota

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
)

type memBackend struct {
	date  string
	count int
}

func (b *memBackend) QuotaCounter() (string, int, error) { return b.date, b.count, nil }
func (b *memBackend) SetQuotaCounter(date string, count int) error {
	b.date, b.count = date, count
	return nil
}

func TestConsumeUpToLimit(t *testing.T) {
	m := New(nil, 3)

	for i := 0; i < 3; i++ {
		if err := m.Consume(); err != nil {
			t.Fatalf("Consume %d: %v", i, err)
		}
	}
	if err := m.Consume(); !errors.Is(err, errors.ErrQuotaExceeded) {
		t.Errorf("expected QUOTA_EXCEEDED, got %v", err)
	}

	used, limit := m.Usage()
	if used != 3 || limit != 3 {
		t.Errorf("usage = %d/%d", used, limit)
	}
	if m.Remaining() != 0 {
		t.Errorf("remaining = %d", m.Remaining())
	}
}

func TestDateRolloverResetsCounter(t *testing.T) {
	m := New(nil, 2)

	day := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return day }
	m.date = m.today()

	m.Consume()
	m.Consume()
	if err := m.Consume(); err == nil {
		t.Fatal("expected exhaustion")
	}

	// Midnight passes.
	day = day.Add(24 * time.Hour)
	if err := m.Consume(); err != nil {
		t.Errorf("Consume after rollover: %v", err)
	}
	used, _ := m.Usage()
	if used != 1 {
		t.Errorf("used = %d after rollover", used)
	}
}

func TestPersistedCounterRestored(t *testing.T) {
	backend := &memBackend{}

	first := New(backend, 10)
	first.Consume()
	first.Consume()

	second := New(backend, 10)
	used, _ := second.Usage()
	if used != 2 {
		t.Errorf("restored used = %d, want 2", used)
	}
}

func TestStaleCounterDiscarded(t *testing.T) {
	backend := &memBackend{date: "2020-01-01", count: 9}

	m := New(backend, 10)
	used, _ := m.Usage()
	if used != 0 {
		t.Errorf("stale counter restored: used = %d", used)
	}
}

func TestResetClearsCounter(t *testing.T) {
	backend := &memBackend{}
	m := New(backend, 5)
	m.Consume()
	m.Consume()

	m.Reset()

	used, _ := m.Usage()
	if used != 0 {
		t.Errorf("used = %d after reset", used)
	}
	if backend.count != 0 {
		t.Errorf("persisted count = %d after reset", backend.count)
	}
}

type fakeUsageService struct {
	used, limit, remaining int
	err                    error
}

func (s *fakeUsageService) Usage(context.Context) (int, int, int, error) {
	return s.used, s.limit, s.remaining, s.err
}

func TestRefreshAdoptsStricterRemoteView(t *testing.T) {
	m := New(nil, 10)
	m.Consume()

	if err := m.Refresh(context.Background(), &fakeUsageService{used: 7, limit: 8, remaining: 1}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	used, limit := m.Usage()
	if used != 7 || limit != 8 {
		t.Errorf("usage = %d/%d", used, limit)
	}
}

func TestRefreshKeepsHigherLocalCount(t *testing.T) {
	m := New(nil, 10)
	for i := 0; i < 5; i++ {
		m.Consume()
	}

	if err := m.Refresh(context.Background(), &fakeUsageService{used: 2, limit: 10}); err != nil {
		t.Fatal(err)
	}
	used, _ := m.Usage()
	if used != 5 {
		t.Errorf("used = %d, want local count kept", used)
	}
}

func TestRefreshPropagatesServiceError(t *testing.T) {
	m := New(nil, 10)
	svcErr := stderrors.New("unreachable")
	if err := m.Refresh(context.Background(), &fakeUsageService{err: svcErr}); err == nil {
		t.Error("expected error")
	}
}

func TestZeroLimitFallsBackToDefault(t *testing.T) {
	m := New(nil, 0)
	_, limit := m.Usage()
	if limit != DefaultDailyLimit {
		t.Errorf("limit = %d", limit)
	}
}
