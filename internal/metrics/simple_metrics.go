/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// SimpleMetrics provides a simple in-memory metrics implementation
type SimpleMetrics struct {
	mu sync.RWMutex

	// HTTP metrics
	httpRequests  map[string]int64
	httpDurations map[string][]float64
	httpInFlight  int64

	// Render metrics
	renders         map[string]int64
	renderDurations map[string][]float64
	sectionFailures map[string]int64

	// Cache metrics
	cacheHits   map[string]int64
	cacheMisses map[string]int64

	// Error metrics
	errors map[string]int64

	// Timestamps
	startTime  time.Time
	lastUpdate time.Time
}

// NewSimpleMetrics creates a new simple metrics instance
func NewSimpleMetrics() *SimpleMetrics {
	return &SimpleMetrics{
		httpRequests:    make(map[string]int64),
		httpDurations:   make(map[string][]float64),
		renders:         make(map[string]int64),
		renderDurations: make(map[string][]float64),
		sectionFailures: make(map[string]int64),
		cacheHits:       make(map[string]int64),
		cacheMisses:     make(map[string]int64),
		errors:          make(map[string]int64),
		startTime:       time.Now(),
		lastUpdate:      time.Now(),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *SimpleMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := method + ":" + path + ":" + strconv.Itoa(statusCode)
	m.httpRequests[key]++
	m.httpDurations[key] = append(m.httpDurations[key], duration.Seconds())
	m.lastUpdate = time.Now()
}

// IncHTTPRequestsInFlight increments in-flight HTTP requests
func (m *SimpleMetrics) IncHTTPRequestsInFlight() {
	atomic.AddInt64(&m.httpInFlight, 1)
}

// DecHTTPRequestsInFlight decrements in-flight HTTP requests
func (m *SimpleMetrics) DecHTTPRequestsInFlight() {
	atomic.AddInt64(&m.httpInFlight, -1)
}

// RecordRender records a page render
func (m *SimpleMetrics) RecordRender(pageType, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.renders[pageType+":"+status]++
	m.renderDurations[pageType] = append(m.renderDurations[pageType], duration.Seconds())
	m.lastUpdate = time.Now()
}

// RecordSectionFailure records a section replaced by a placeholder
func (m *SimpleMetrics) RecordSectionFailure(section string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sectionFailures[section]++
	m.lastUpdate = time.Now()
}

// RecordCacheLookup records a cache hit or miss
func (m *SimpleMetrics) RecordCacheLookup(namespace string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hit {
		m.cacheHits[namespace]++
	} else {
		m.cacheMisses[namespace]++
	}
	m.lastUpdate = time.Now()
}

// RecordError records error metrics
func (m *SimpleMetrics) RecordError(component, errorCode, errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := component + ":" + errorCode + ":" + errorType
	m.errors[key]++
	m.lastUpdate = time.Now()
}

// Handler serves the metrics as JSON
func (m *SimpleMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := m.ToJSON()
		if err != nil {
			http.Error(w, "failed to encode metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
}

// ToJSON exports metrics as JSON
func (m *SimpleMetrics) ToJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	data := map[string]interface{}{
		"timestamp":      m.lastUpdate.Unix(),
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"http": map[string]interface{}{
			"requests":  m.httpRequests,
			"durations": m.calculateStats(m.httpDurations),
			"in_flight": atomic.LoadInt64(&m.httpInFlight),
		},
		"renders": map[string]interface{}{
			"total":            m.renders,
			"durations":        m.calculateStats(m.renderDurations),
			"section_failures": m.sectionFailures,
		},
		"cache": map[string]interface{}{
			"hits":   m.cacheHits,
			"misses": m.cacheMisses,
		},
		"system": map[string]interface{}{
			"memory_usage_bytes": memStats.Alloc,
			"memory_total_bytes": memStats.TotalAlloc,
			"goroutines_active":  runtime.NumGoroutine(),
			"gc_cycles":          memStats.NumGC,
		},
		"errors": m.errors,
	}

	return json.Marshal(data)
}

// calculateStats calculates basic statistics for duration arrays
func (m *SimpleMetrics) calculateStats(data map[string][]float64) map[string]interface{} {
	stats := make(map[string]interface{})

	for key, values := range data {
		if len(values) == 0 {
			continue
		}

		sum := 0.0
		min := values[0]
		max := values[0]

		for _, v := range values {
			sum += v
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}

		stats[key] = map[string]interface{}{
			"count": len(values),
			"sum":   sum,
			"avg":   sum / float64(len(values)),
			"min":   min,
			"max":   max,
		}
	}

	return stats
}
