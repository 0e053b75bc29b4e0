// Package quota enforces the per-day usage allowance for unauthenticated
// sessions. The counter survives restarts but resets when the calendar
// date changes.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/promptdeck/internal/errors"
	"github.com/kimhsiao/promptdeck/internal/logging"
)

// DefaultDailyLimit is the number of chargeable actions allowed per day
// without an account.
const DefaultDailyLimit = 25

// UsageService is the remote authority on unmetered usage. It is
// consulted once when entering unauthenticated mode so a cleared local
// counter cannot sidestep the limit.
type UsageService interface {
	Usage(ctx context.Context) (used, limit, remaining int, err error)
}

// Backend persists the counter between sessions.
type Backend interface {
	QuotaCounter() (date string, count int, err error)
	SetQuotaCounter(date string, count int) error
}

// Meter tracks daily usage against a fixed limit.
type Meter struct {
	mu      sync.Mutex
	backend Backend
	limit   int
	date    string
	count   int
	now     func() time.Time
}

// New creates a Meter and restores the persisted counter. A counter from
// an earlier date is discarded.
func New(backend Backend, limit int) *Meter {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	m := &Meter{backend: backend, limit: limit, now: time.Now}
	m.date = m.today()

	if backend != nil {
		date, count, err := backend.QuotaCounter()
		if err != nil {
			logging.Error("Failed to restore quota counter", err)
		} else if date == m.date {
			m.count = count
		}
	}
	return m
}

func (m *Meter) today() string {
	return m.now().Format("2006-01-02")
}

// rolloverLocked resets the counter when the date has changed.
func (m *Meter) rolloverLocked() {
	today := m.today()
	if today != m.date {
		m.date = today
		m.count = 0
	}
}

// Consume charges one action against today's allowance.
func (m *Meter) Consume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverLocked()
	if m.count >= m.limit {
		return errors.Newf(errors.ErrQuotaExceeded,
			"daily limit of %d reached, sign in for unlimited use", m.limit)
	}

	m.count++
	m.persistLocked()
	return nil
}

// Usage returns today's consumed count and the limit.
func (m *Meter) Usage() (used, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	return m.count, m.limit
}

// Remaining returns how many actions are left today.
func (m *Meter) Remaining() int {
	used, limit := m.Usage()
	if used >= limit {
		return 0
	}
	return limit - used
}

// Reset clears the counter, typically on login since authenticated
// sessions are not metered.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count = 0
	m.date = m.today()
	m.persistLocked()
}

// Refresh adopts the remote view of today's usage. The stricter of the
// two counts wins; a zero limit from the service is ignored.
func (m *Meter) Refresh(ctx context.Context, svc UsageService) error {
	used, limit, _, err := svc.Usage(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolloverLocked()
	if used > m.count {
		m.count = used
	}
	if limit > 0 {
		m.limit = limit
	}
	m.persistLocked()
	return nil
}

func (m *Meter) persistLocked() {
	if m.backend == nil {
		return
	}
	if err := m.backend.SetQuotaCounter(m.date, m.count); err != nil {
		logging.Error("Failed to persist quota counter", err)
	}
}
