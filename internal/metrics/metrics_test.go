package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_Scrape(t *testing.T) {
	m := New()

	m.CaptureAttempts.Add(4)
	m.CaptureRetries.Add(3)
	m.CaptureFailures.Inc()
	m.PhotosTotal.Inc()
	m.PhotoBytes.Add(150 * 1024)
	m.CaptureDuration.Observe(2.3)
	m.CompressPasses.Observe(3)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape body: %v", err)
	}
	text := string(body)

	for _, want := range []string{
		"glasscam_capture_attempts_total 4",
		"glasscam_capture_retries_total 3",
		"glasscam_capture_failures_total 1",
		"glasscam_photos_total 1",
		"glasscam_photo_bytes_total 153600",
		"glasscam_capture_duration_seconds_count 1",
		"glasscam_compress_passes_count 1",
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("scrape output missing %q", want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.PhotosTotal.Inc()

	if a.Registry() == b.Registry() {
		t.Fatal("each metric set should own its registry")
	}

	got, err := b.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range got {
		if mf.GetName() == "glasscam_photos_total" {
			for _, metric := range mf.GetMetric() {
				if metric.GetCounter().GetValue() != 0 {
					t.Error("counter bled across registries")
				}
			}
		}
	}
}
