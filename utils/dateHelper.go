package utils

import (
	"sync"
	"time"
)

const DateLayout = "2006-01-02"

var (
	nowMu   sync.RWMutex
	nowFunc = time.Now
)

// Now returns the current time in UTC.
func Now() time.Time {
	nowMu.RLock()
	defer nowMu.RUnlock()
	return nowFunc().UTC()
}

// SetNowFunc replaces the clock and returns a function restoring the previous one.
func SetNowFunc(f func() time.Time) (restore func()) {
	nowMu.Lock()
	prev := nowFunc
	nowFunc = f
	nowMu.Unlock()
	return func() {
		nowMu.Lock()
		nowFunc = prev
		nowMu.Unlock()
	}
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today is DateOnly(Now()).
func Today() time.Time {
	return DateOnly(Now())
}

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOnly(t), nil
}
