// Package clock defines the logical time used by the game master.
//
// Timestamps are microseconds since the Unix epoch. Workers never read wall
// time directly; they ask a Clock so tests can drive time by hand.
package clock

import (
	"strconv"
	"sync"
	"time"
)

// Timestamp is a point in time with microsecond precision.
type Timestamp int64

func FromMicros(us int64) Timestamp  { return Timestamp(us) }
func FromMillis(ms int64) Timestamp  { return Timestamp(ms * 1000) }
func FromSeconds(s int64) Timestamp  { return Timestamp(s * 1_000_000) }
func FromTime(t time.Time) Timestamp { return Timestamp(t.UnixMicro()) }

func (t Timestamp) Micros() int64  { return int64(t) }
func (t Timestamp) Millis() int64  { return int64(t) / 1000 }
func (t Timestamp) Seconds() int64 { return int64(t) / 1_000_000 }
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// Add returns t shifted by d, truncated to microseconds.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d.Microseconds())
}

// Sub returns the duration t-u.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(int64(t)-int64(u)) * time.Microsecond
}

func (t Timestamp) Before(u Timestamp) bool { return t < u }
func (t Timestamp) After(u Timestamp) bool  { return t > u }

func (t Timestamp) String() string {
	return strconv.FormatInt(int64(t), 10) + "us"
}

// Clock supplies the current logical time.
type Clock interface {
	Now() Timestamp
}

// Real reads the wall clock.
type Real struct{}

func (Real) Now() Timestamp { return FromTime(time.Now()) }

// Manual is a settable clock for tests and offline tools.
type Manual struct {
	mu  sync.RWMutex
	now Timestamp
}

func NewManual(start Timestamp) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() Timestamp {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *Manual) Set(t Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

func (m *Manual) Advance(d time.Duration) Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}
