package provider

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting
	StatusBlocked                         // Provider has blocked this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status           ProviderStatus `json:"status"`
	AverageLatency   time.Duration  `json:"average_latency"`
	ThrottleCount429 int            `json:"throttle_count_429"`
	ThrottleCount403 int            `json:"throttle_count_403"`
	RequestsLastHour int            `json:"requests_last_hour"`
}

// ProviderMonitor tracks latency and throttling of one provider. Request
// counts are kept in per-minute buckets over the last hour.
type ProviderMonitor struct {
	mu sync.RWMutex

	latencies  []time.Duration
	latencyPos int
	latencyN   int

	status429Count   int
	status403Count   int
	throttlePatterns []string
	lastThrottleTime time.Time
	retryAfter       time.Duration

	buckets     [60]int
	bucketStamp [60]int64 // unix minute each bucket belongs to

	slowResponseThreshold time.Duration
	now                   func() time.Time
}

// NewProviderMonitor creates a new monitor with default settings.
func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		latencies: make([]time.Duration, 100),
		throttlePatterns: []string{
			"rate limit exceeded",
			"too many requests",
			"daily request count exceeded",
			"compute units",
			"monthly quota exceeded",
		},
		slowResponseThreshold: 3 * time.Second,
		now:                   time.Now,
	}
}

// RecordRequest records a completed request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.latencies[pm.latencyPos] = latency
	pm.latencyPos = (pm.latencyPos + 1) % len(pm.latencies)
	if pm.latencyN < len(pm.latencies) {
		pm.latencyN++
	}

	minute := pm.now().Unix() / 60
	i := minute % int64(len(pm.buckets))
	if pm.bucketStamp[i] != minute {
		pm.bucketStamp[i] = minute
		pm.buckets[i] = 0
	}
	pm.buckets[i]++
}

// RecordThrottle records a rate limiting or blocking response.
func (pm *ProviderMonitor) RecordThrottle(statusCode int, retryAfter string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.lastThrottleTime = pm.now()

	switch statusCode {
	case 429:
		pm.status429Count++
		pm.retryAfter = time.Minute
		if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
			pm.retryAfter = time.Duration(secs) * time.Second
		}
	case 403:
		pm.status403Count++
		pm.retryAfter = 10 * time.Minute // Longer for IP block
	}
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	lowerMsg := strings.ToLower(message)
	for _, pattern := range pm.throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked()
}

func (pm *ProviderMonitor) statusLocked() ProviderStatus {
	cooling := pm.now().Sub(pm.lastThrottleTime) < pm.retryAfter

	if pm.status403Count > 0 && cooling {
		return StatusBlocked
	}
	if pm.status429Count > 5 && cooling {
		return StatusThrottled
	}
	if pm.latencyN > 10 && pm.averageLocked() > pm.slowResponseThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func (pm *ProviderMonitor) averageLocked() time.Duration {
	if pm.latencyN == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < pm.latencyN; i++ {
		total += pm.latencies[i]
	}
	return total / time.Duration(pm.latencyN)
}

// GetRetryAfter returns remaining time before retry is allowed.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	remaining := pm.retryAfter - pm.now().Sub(pm.lastThrottleTime)
	if remaining > 0 {
		return remaining
	}
	return 0
}

// GetAverageLatency returns the average latency of recent requests.
func (pm *ProviderMonitor) GetAverageLatency() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.averageLocked()
}

// RequestsLastHour returns the number of requests in the trailing hour.
func (pm *ProviderMonitor) RequestsLastHour() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.requestsLocked()
}

func (pm *ProviderMonitor) requestsLocked() int {
	cutoff := pm.now().Unix()/60 - int64(len(pm.buckets))
	total := 0
	for i, n := range pm.buckets {
		if pm.bucketStamp[i] > cutoff {
			total += n
		}
	}
	return total
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return MonitorStats{
		Status:           pm.statusLocked(),
		AverageLatency:   pm.averageLocked(),
		ThrottleCount429: pm.status429Count,
		ThrottleCount403: pm.status403Count,
		RequestsLastHour: pm.requestsLocked(),
	}
}
