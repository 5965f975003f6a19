package jobs

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}
	if len(m.Collectors()) != 3 {
		t.Errorf("expected 3 collectors, got %d", len(m.Collectors()))
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m.Register(reg); err != nil {
			t.Errorf("Register() returned error: %v", err)
		}

		// Vectors only appear in Gather() once a label set is used
		m.IncJobsTotal(JobTypeScoreRecompute, StatusSuccess)
		m.ObserveJobDuration(JobTypeScoreRecompute, 1.0)
		m.IncJobErrors(JobTypeScoreRecompute, "timeout")

		families, err := reg.Gather()
		if err != nil {
			t.Errorf("Gather() returned error: %v", err)
		}

		expectedNames := map[string]bool{
			MetricBackgroundJobsTotal:      false,
			MetricBackgroundJobsDuration:   false,
			MetricBackgroundJobErrorsTotal: false,
		}
		for _, family := range families {
			if _, ok := expectedNames[family.GetName()]; ok {
				expectedNames[family.GetName()] = true
			}
		}
		for name, found := range expectedNames {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		if err := NewMetrics().Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}
		if err := NewMetrics().Register(reg); err == nil {
			t.Error("second Register() should have returned an error")
		}
	})
}

func getCounterVecValue(vec *prometheus.CounterVec, labels ...string) float64 {
	metric, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return -1
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func getHistogramVecSample(vec *prometheus.HistogramVec, labels ...string) (uint64, float64) {
	observer, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, -1
	}
	metric, ok := observer.(prometheus.Metric)
	if !ok {
		return 0, -1
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		return 0, -1
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}

func TestMetrics_IncJobsTotal(t *testing.T) {
	m := NewMetrics()

	testCases := []struct {
		jobType string
		status  string
		count   int
	}{
		{JobTypeScoreRecompute, StatusSuccess, 10},
		{JobTypeScoreRecompute, StatusFailure, 2},
		{JobTypeMentionExtract, StatusSuccess, 5},
	}

	for _, tc := range testCases {
		if initial := getCounterVecValue(m.jobsTotal, tc.jobType, tc.status); initial != 0 {
			t.Errorf("initial value for %s/%s = %f, want 0", tc.jobType, tc.status, initial)
		}
		for i := 0; i < tc.count; i++ {
			m.IncJobsTotal(tc.jobType, tc.status)
		}
		if final := getCounterVecValue(m.jobsTotal, tc.jobType, tc.status); final != float64(tc.count) {
			t.Errorf("final value for %s/%s = %f, want %d", tc.jobType, tc.status, final, tc.count)
		}
	}
}

func TestMetrics_ObserveJobDuration(t *testing.T) {
	m := NewMetrics()
	durations := []float64{0.5, 12, 90, 250}

	var expectedSum float64
	for _, d := range durations {
		m.ObserveJobDuration(JobTypeScoreRecompute, d)
		expectedSum += d
	}

	count, sum := getHistogramVecSample(m.jobsDuration, JobTypeScoreRecompute)
	if count != uint64(len(durations)) {
		t.Errorf("sample count = %d, want %d", count, len(durations))
	}
	if sum < expectedSum*0.99 || sum > expectedSum*1.01 {
		t.Errorf("sample sum = %f, want approximately %f", sum, expectedSum)
	}

	if other, _ := getHistogramVecSample(m.jobsDuration, JobTypeMentionExtract); other != 0 {
		t.Errorf("extract job should have no samples, got %d", other)
	}
}

func TestMetrics_IncJobErrors(t *testing.T) {
	m := NewMetrics()

	m.IncJobErrors(JobTypeScoreRecompute, "timeout")
	m.IncJobErrors(JobTypeScoreRecompute, "timeout")
	m.IncJobErrors(JobTypeMentionExtract, "resolve_error")

	if got := getCounterVecValue(m.jobErrors, JobTypeScoreRecompute, "timeout"); got != 2 {
		t.Errorf("timeout errors = %f, want 2", got)
	}
	if got := getCounterVecValue(m.jobErrors, JobTypeMentionExtract, "resolve_error"); got != 1 {
		t.Errorf("resolve errors = %f, want 1", got)
	}
}

func TestMetrics_Concurrency(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	iterations := 100
	goroutines := 10

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				m.IncJobsTotal(JobTypeScoreRecompute, StatusSuccess)
				m.ObserveJobDuration(JobTypeScoreRecompute, 1.5)
				m.IncJobErrors(JobTypeScoreRecompute, "store_error")
			}
		}()
	}
	wg.Wait()

	expected := float64(goroutines * iterations)
	if got := getCounterVecValue(m.jobsTotal, JobTypeScoreRecompute, StatusSuccess); got != expected {
		t.Errorf("jobsTotal = %f, want %f", got, expected)
	}
	if got := getCounterVecValue(m.jobErrors, JobTypeScoreRecompute, "store_error"); got != expected {
		t.Errorf("jobErrors = %f, want %f", got, expected)
	}
	if count, _ := getHistogramVecSample(m.jobsDuration, JobTypeScoreRecompute); count != uint64(expected) {
		t.Errorf("jobsDuration count = %d, want %v", count, expected)
	}
}
