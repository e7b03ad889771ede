package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the value of the data point whose attribute key equals
// value.
func sumByAttr(t *testing.T, met *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", met.Name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", met.Name, key, value)
	return 0
}

func TestRecordJob(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordJob(ctx, "replicate", "succeeded", 90*time.Second)
	m.RecordJob(ctx, "replicate", "succeeded", 30*time.Second)
	m.RecordJob(ctx, "replicate", "canceled", 5*time.Second)

	rm := collect(t, reader)
	jobs := findMetric(rm, "transcribot.jobs")
	if jobs == nil {
		t.Fatal("transcribot.jobs not found")
	}
	if got := sumByAttr(t, jobs, "status", "succeeded"); got != 2 {
		t.Errorf("succeeded jobs = %d, want 2", got)
	}
	if got := sumByAttr(t, jobs, "status", "canceled"); got != 1 {
		t.Errorf("canceled jobs = %d, want 1", got)
	}

	dur := findMetric(rm, "transcribot.job.duration")
	if dur == nil {
		t.Fatal("transcribot.job.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("job duration is not a histogram")
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 3 {
		t.Errorf("duration samples = %d, want 3", count)
	}
}

func TestRecordProgressEdit(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProgressEdit(ctx, EditSent)
	m.RecordProgressEdit(ctx, EditSkipped)
	m.RecordProgressEdit(ctx, EditSkipped)
	m.RecordProgressEdit(ctx, EditRateLimited)

	met := findMetric(collect(t, reader), "transcribot.progress.edits")
	if met == nil {
		t.Fatal("metric not found")
	}
	tests := []struct {
		outcome string
		want    int64
	}{
		{EditSent, 1},
		{EditSkipped, 2},
		{EditRateLimited, 1},
	}
	for _, tc := range tests {
		if got := sumByAttr(t, met, "outcome", tc.outcome); got != tc.want {
			t.Errorf("%s edits = %d, want %d", tc.outcome, got, tc.want)
		}
	}
}

func TestRecordProviderError(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)

	m.RecordProviderError(context.Background(), "whisper-server", "submit")

	met := findMetric(collect(t, reader), "transcribot.provider.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	if got := sumByAttr(t, met, "kind", "submit"); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
}

func TestQueueInstruments(t *testing.T) {
	t.Parallel()
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.QueueWaiting.Add(ctx, 2)
	m.QueueWaiting.Add(ctx, -1)
	m.ActiveSessions.Add(ctx, 1)
	m.RecordQueueWait(ctx, 12*time.Second)

	rm := collect(t, reader)
	for name, want := range map[string]int64{
		"transcribot.queue.waiting":   1,
		"transcribot.active_sessions": 1,
	} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("metric %q not found", name)
		}
		sum := met.Data.(metricdata.Sum[int64])
		if len(sum.DataPoints) == 0 || sum.DataPoints[0].Value != want {
			t.Errorf("%s = %+v, want %d", name, sum.DataPoints, want)
		}
	}
	if findMetric(rm, "transcribot.queue.wait") == nil {
		t.Error("transcribot.queue.wait not found")
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	t.Parallel()
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different pointers")
	}
}
