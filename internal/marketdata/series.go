package marketdata

import (
	"sync"
)

// DefaultSeriesCapacity bounds how many candles a series retains.
const DefaultSeriesCapacity = 500

// Series holds the ordered candle history for one (symbol, timeframe) pair.
// Closed candles are appended; the most recent in-progress candle is
// updated in place until its period elapses. Timestamps are enforced to be
// monotonically non-decreasing.
type Series struct {
	mu        sync.RWMutex
	symbol    string
	timeframe string
	capacity  int
	candles   []Candle
}

// NewSeries creates a candle series with the default retention capacity.
func NewSeries(symbol, timeframe string) *Series {
	return NewSeriesWithCapacity(symbol, timeframe, DefaultSeriesCapacity)
}

// NewSeriesWithCapacity creates a candle series with a custom capacity.
func NewSeriesWithCapacity(symbol, timeframe string, capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultSeriesCapacity
	}
	return &Series{
		symbol:    symbol,
		timeframe: timeframe,
		capacity:  capacity,
		candles:   make([]Candle, 0, capacity),
	}
}

// Symbol returns the series symbol.
func (s *Series) Symbol() string { return s.symbol }

// Timeframe returns the series timeframe string.
func (s *Series) Timeframe() string { return s.timeframe }

// Append adds a new closed candle. Candles older than the newest retained
// candle are dropped; a candle with the same open time replaces the current
// in-progress candle (the candle just closed).
func (s *Series) Append(c Candle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.candles)
	if n > 0 {
		last := s.candles[n-1]
		if c.OpenTime.Before(last.OpenTime) {
			return false
		}
		if c.OpenTime.Equal(last.OpenTime) {
			s.candles[n-1] = c
			return true
		}
	}

	s.candles = append(s.candles, c)
	if len(s.candles) > s.capacity {
		// Drop oldest, keep the backing array bounded.
		copy(s.candles, s.candles[len(s.candles)-s.capacity:])
		s.candles = s.candles[:s.capacity]
	}
	return true
}

// UpdateCurrent mutates the in-progress candle in place. The open time must
// match the newest candle; anything else is treated as an append.
func (s *Series) UpdateCurrent(c Candle) bool {
	s.mu.Lock()
	n := len(s.candles)
	if n > 0 && s.candles[n-1].OpenTime.Equal(c.OpenTime) {
		s.candles[n-1] = c
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	return s.Append(c)
}

// Snapshot returns a copy of the candle window, oldest first.
func (s *Series) Snapshot() []Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Last returns the most recent candle, or false when the series is empty.
func (s *Series) Last() (Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Len returns the number of retained candles.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}
