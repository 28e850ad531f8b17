package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStage(t *testing.T) {
	before := testutil.ToFloat64(stageHitsTotal.WithLabelValues("in_ride", "greeting"))
	RecordStage("in_ride", "greeting")
	RecordStage("in_ride", "greeting")
	assert.Equal(t, before+2, testutil.ToFloat64(stageHitsTotal.WithLabelValues("in_ride", "greeting")))
}

func TestRecordLLMCallStatus(t *testing.T) {
	okBefore := testutil.ToFloat64(llmCallsTotal.WithLabelValues("test", "ok"))
	errBefore := testutil.ToFloat64(llmCallsTotal.WithLabelValues("test", "error"))

	RecordLLMCall("test", 20*time.Millisecond, nil)
	RecordLLMCall("test", time.Second, errors.New("boom"))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(llmCallsTotal.WithLabelValues("test", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(llmCallsTotal.WithLabelValues("test", "error")))
}

func TestConnectionGauge(t *testing.T) {
	ConnectionOpened("unity")
	ConnectionOpened("unity")
	ConnectionClosed("unity")
	assert.Equal(t, float64(1), testutil.ToFloat64(activeConnections.WithLabelValues("unity")))
}
