package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRecord(t *testing.T) {
	m := New()
	m.ObserveRecord("generation", true)
	m.ObserveRecord("generation", true)
	m.ObserveRecord("generation", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("generation", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("generation", "false")))
}

func TestObserveScore(t *testing.T) {
	m := New()
	m.ObserveScore("incomplete_answer", 1)
	m.ObserveScore("incomplete_answer", 0)
	m.ObserveScore("incomplete_answer", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JudgeScores.WithLabelValues("incomplete_answer", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JudgeScores.WithLabelValues("incomplete_answer", "0")))
}

func TestLoopIteration(t *testing.T) {
	m := New()
	m.SetFailureRate(0.5)
	m.ObserveLoopIteration(0.25)
	m.ObserveLoopIteration(0.05)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoopIterations))
	assert.Equal(t, 0.05, testutil.ToFloat64(m.FailureRate))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRecord("judge", true)
		m.ObserveScore("tips", 0)
		m.SetFailureRate(1)
		m.ObserveLoopIteration(0)
		assert.NoError(t, m.Push(context.Background(), "http://unused", "label"))
	})
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.SetFailureRate(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FailureRate))

	n, err := testutil.GatherAndCount(a.Registry, "diyqa_overall_failure_rate")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPush(t *testing.T) {
	var path, body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		body = buf.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.SetFailureRate(0.1)
	require.NoError(t, m.Push(context.Background(), srv.URL, "label"))

	assert.True(t, strings.HasPrefix(path, "/metrics/job/diyqa/"), path)
	assert.Contains(t, path, "/stage/label")
	assert.NotEmpty(t, body)
}

func TestPushEmptyURL(t *testing.T) {
	assert.NoError(t, New().Push(context.Background(), "", "label"))
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "label")
	assert.ErrorContains(t, err, "push metrics to")
}
