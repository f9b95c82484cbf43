package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	finished := time.Date(2026, 6, 1, 3, 0, 0, 0, time.UTC)
	m.ObserveRun("redemption-expiry", 250*time.Millisecond, finished, nil)
	m.ObserveRun("redemption-expiry", time.Second, finished.Add(time.Hour), errors.New("db down"))
	m.IncSkipped("outbox-retention")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	runs := findMetricFamily(mfs, "loyalty_job_runs_total")
	if runs == nil {
		t.Fatalf("runs counter not exported")
	}
	results := map[string]float64{}
	for _, metric := range runs.GetMetric() {
		var job, result string
		for _, l := range metric.GetLabel() {
			switch l.GetName() {
			case "job":
				job = l.GetValue()
			case "result":
				result = l.GetValue()
			}
		}
		results[job+"/"+result] = metric.GetCounter().GetValue()
	}
	if results["redemption-expiry/success"] != 1 || results["redemption-expiry/failure"] != 1 {
		t.Fatalf("unexpected run counts %+v", results)
	}
	if results["outbox-retention/skipped"] != 1 {
		t.Fatalf("expected skipped run, got %+v", results)
	}

	if got, err := fetchHistogramSum(mfs, "loyalty_job_duration_seconds", "job", "redemption-expiry"); err != nil || got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f (%v)", got, err)
	}
	gauge := findMetricFamily(mfs, "loyalty_job_last_success_timestamp_seconds")
	if gauge == nil || gauge.GetMetric()[0].GetGauge().GetValue() != float64(finished.Unix()) {
		t.Fatalf("last success should stay at the successful run")
	}

	var nilMetrics *JobMetrics
	nilMetrics.ObserveRun("x", time.Second, finished, nil)
	NewJobMetrics(nil).IncSkipped("x")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

func TestLoyaltyMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLoyaltyMetrics(reg)
	m.AddPoints("purchase", 28)
	m.AddPoints("purchase", 2)
	m.AddPoints("bonus", 0)
	m.IncRedemption("success")
	m.IncRedemption("INSUFFICIENT_POINTS")
	m.IncOutbox("published")
	m.IncOutbox("published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "loyalty_points_awarded_total", "type", "purchase"); err != nil || got != 30 {
		t.Fatalf("expected purchase=30, got %f (%v)", got, err)
	}
	if _, err := fetchCounterValue(mfs, "loyalty_points_awarded_total", "type", "bonus"); err == nil {
		t.Fatalf("zero-point awards should not create a series")
	}
	if got, err := fetchCounterValue(mfs, "loyalty_redemptions_total", "outcome", "INSUFFICIENT_POINTS"); err != nil || got != 1 {
		t.Fatalf("expected one insufficient outcome, got %f (%v)", got, err)
	}

	if got, err := fetchCounterValue(mfs, "loyalty_outbox_events_total", "outcome", "published"); err != nil || got != 2 {
		t.Fatalf("expected two published outbox rows, got %f (%v)", got, err)
	}

	var nilMetrics *LoyaltyMetrics
	nilMetrics.AddPoints("purchase", 1)
	nilMetrics.IncRedemption("success")
	NewLoyaltyMetrics(nil).IncRedemption("success")
}
