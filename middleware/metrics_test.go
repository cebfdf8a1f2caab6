package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/flaneurtv/redisjq/middleware"
)

type meterHarness struct {
	t      *testing.T
	reader *sdkmetric.ManualReader
	mw     middleware.Middleware
}

func newMeterHarness(t *testing.T) *meterHarness {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return &meterHarness{t: t, reader: reader, mw: middleware.MetricsWithMeter(mp.Meter("test"))}
}

func (h *meterHarness) run(err error) {
	_ = h.mw(context.Background(), newTestJob(), func(context.Context) error { return err })
}

func (h *meterHarness) metric(name string) metricdata.Aggregation {
	h.t.Helper()
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(context.Background(), &rm); err != nil {
		h.t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	h.t.Fatalf("metric %s not recorded", name)
	return nil
}

// runsByStatus returns the executions counter keyed by status.
func (h *meterHarness) runsByStatus() map[string]int64 {
	h.t.Helper()
	sum, ok := h.metric("redisjq.handler.executions").(metricdata.Sum[int64])
	if !ok {
		h.t.Fatal("executions is not an int64 sum")
	}
	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		status, _ := dp.Attributes.Value("status")
		out[status.AsString()] += dp.Value
	}
	return out
}

func TestMetrics_CountsByStatus(t *testing.T) {
	h := newMeterHarness(t)
	h.run(nil)
	h.run(nil)
	h.run(errors.New("boom"))
	h.run(fmt.Errorf("slow: %w", context.DeadlineExceeded))

	got := h.runsByStatus()
	want := map[string]int64{
		middleware.StatusOK:      2,
		middleware.StatusError:   1,
		middleware.StatusTimeout: 1,
	}
	for status, n := range want {
		if got[status] != n {
			t.Errorf("runs[%s] = %d, want %d", status, got[status], n)
		}
	}
}

func TestMetrics_Duration(t *testing.T) {
	h := newMeterHarness(t)
	_ = h.mw(context.Background(), newTestJob(), func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	hist, ok := h.metric("redisjq.handler.duration").(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration is not a float64 histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(hist.DataPoints))
	}
	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("count = %d, want 1", dp.Count)
	}
	if dp.Sum < 0.005 {
		t.Errorf("sum = %v, want >= 5ms", dp.Sum)
	}
	want := attribute.NewSet(attribute.String("queue", "default"), attribute.String("status", "ok"))
	if !dp.Attributes.Equals(&want) {
		t.Errorf("attributes = %v, want %v", dp.Attributes.ToSlice(), want.ToSlice())
	}
}

func TestMetrics_ActiveTracksRunningHandlers(t *testing.T) {
	h := newMeterHarness(t)

	active := func() int64 {
		sum, ok := h.metric("redisjq.handler.active").(metricdata.Sum[int64])
		if !ok || len(sum.DataPoints) != 1 {
			t.Fatalf("unexpected active data %+v", sum)
		}
		return sum.DataPoints[0].Value
	}

	_ = h.mw(context.Background(), newTestJob(), func(context.Context) error {
		if n := active(); n != 1 {
			t.Errorf("active while running = %d, want 1", n)
		}
		return nil
	})
	if n := active(); n != 0 {
		t.Errorf("active after run = %d, want 0", n)
	}
}

func TestMetrics_ActiveReleasedAfterPanic(t *testing.T) {
	h := newMeterHarness(t)
	func() {
		defer func() { _ = recover() }()
		_ = h.mw(context.Background(), newTestJob(), func(context.Context) error { panic("boom") })
	}()

	sum := h.metric("redisjq.handler.active").(metricdata.Sum[int64])
	if v := sum.DataPoints[0].Value; v != 0 {
		t.Errorf("active after panic = %d, want 0", v)
	}
}

func TestMetrics_GlobalProvider(t *testing.T) {
	called := false
	err := middleware.Metrics()(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
