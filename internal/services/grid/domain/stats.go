package domain

import (
	"sync"
	"time"
)

const (
	fastRequest   = 200 * time.Millisecond
	mediumRequest = time.Second
)

// Speed classifies remote request latency.
type Speed int

const (
	// SpeedUnknown means no remote request completed yet.
	SpeedUnknown Speed = iota
	// SpeedFast is under 200ms.
	SpeedFast
	// SpeedMedium is under one second.
	SpeedMedium
	// SpeedSlow is one second or more.
	SpeedSlow
)

// String returns the lower-case speed name.
func (s Speed) String() string {
	switch s {
	case SpeedFast:
		return "fast"
	case SpeedMedium:
		return "medium"
	case SpeedSlow:
		return "slow"
	default:
		return "unknown"
	}
}

// ClassifyLatency buckets d into a Speed.
func ClassifyLatency(d time.Duration) Speed {
	switch {
	case d < fastRequest:
		return SpeedFast
	case d < mediumRequest:
		return SpeedMedium
	default:
		return SpeedSlow
	}
}

// Stats counts controller fetch activity.
type Stats struct {
	// Requests counts remote calls actually made; joined single-flight
	// waiters are not counted twice.
	Requests    uint64
	CacheHits   uint64
	CacheMisses uint64
	// Stale counts responses discarded because their token was superseded.
	Stale          uint64
	Failures       uint64
	SlowRequests   uint64
	LastLatency    time.Duration
	AverageLatency time.Duration
}

// Speed classifies the last remote request.
func (s Stats) Speed() Speed {
	if s.Requests == 0 {
		return SpeedUnknown
	}
	return ClassifyLatency(s.LastLatency)
}

type statsRecorder struct {
	mu           sync.Mutex
	stats        Stats
	totalLatency time.Duration
}

func (r *statsRecorder) observe(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Requests++
	r.stats.LastLatency = latency
	r.totalLatency += latency
	r.stats.AverageLatency = r.totalLatency / time.Duration(r.stats.Requests)
	if ClassifyLatency(latency) == SpeedSlow {
		r.stats.SlowRequests++
	}
}

func (r *statsRecorder) cacheHit()  { r.add(func(s *Stats) { s.CacheHits++ }) }
func (r *statsRecorder) cacheMiss() { r.add(func(s *Stats) { s.CacheMisses++ }) }
func (r *statsRecorder) stale()     { r.add(func(s *Stats) { s.Stale++ }) }
func (r *statsRecorder) failure()   { r.add(func(s *Stats) { s.Failures++ }) }

func (r *statsRecorder) add(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
