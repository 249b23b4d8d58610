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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/storeforge/storefront/internal/config"
)

var _ MetricsProvider = (*Metrics)(nil)

func TestNewMetricsProvider(t *testing.T) {
	tests := []struct {
		backend string
		simple  bool
	}{
		{"simple", true},
		{"prometheus", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			provider := NewMetricsProvider(config.MetricsConfig{Enabled: true, Backend: tt.backend})
			if provider == nil {
				t.Fatal("NewMetricsProvider() returned nil")
			}
			if _, ok := provider.(*SimpleMetrics); ok != tt.simple {
				t.Errorf("Unexpected provider type %T for backend %q", provider, tt.backend)
			}
		})
	}
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRender("index", "ok", 10*time.Millisecond)
	m.RecordRender("index", "ok", 20*time.Millisecond)
	m.RecordSectionFailure("hero")
	m.RecordCacheLookup("domain", true)
	m.RecordCacheLookup("domain", false)
	m.RecordCacheLookup("domain", false)
	m.RecordHTTPRequest("GET", "/", 200, time.Millisecond)
	m.IncHTTPRequestsInFlight()

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"renders", m.RendersTotal.WithLabelValues("index", "ok"), 2},
		{"section failures", m.SectionFailures.WithLabelValues("hero"), 1},
		{"cache hits", m.CacheLookups.WithLabelValues("domain", "hit"), 1},
		{"cache misses", m.CacheLookups.WithLabelValues("domain", "miss"), 2},
		{"http requests", m.HTTPRequestsTotal.WithLabelValues("GET", "/", "200"), 1},
		{"in flight", m.HTTPRequestsInFlight, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordRender("product", "RENDER_ERROR", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `storefront_renders_total{page_type="product",status="RENDER_ERROR"} 1`) {
		t.Errorf("Expected render counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("Expected runtime collectors in exposition")
	}
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// each registry owns its collectors so providers can coexist
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())
	a.RecordSectionFailure("footer")

	if got := testutil.ToFloat64(b.SectionFailures.WithLabelValues("footer")); got != 0 {
		t.Errorf("Expected isolated registries, got %v", got)
	}
}

func TestTimer_Duration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 10 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()
	if duration < sleepDuration {
		t.Errorf("Timer duration %v should be at least %v", duration, sleepDuration)
	}
	if duration > time.Second {
		t.Errorf("Timer duration %v seems too long for this test", duration)
	}
}

func BenchmarkTimer_Duration(b *testing.B) {
	timer := NewTimer()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		timer.Duration()
	}
}
