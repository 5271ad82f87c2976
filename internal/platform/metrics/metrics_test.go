package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestIncAdmission(t *testing.T) {
	before := testutil.ToFloat64(admissions.WithLabelValues(OutcomeRejected, "TIME_OVERLAP"))
	IncAdmission(OutcomeRejected, "TIME_OVERLAP")
	IncAdmission(OutcomeRejected, "TIME_OVERLAP")

	got := testutil.ToFloat64(admissions.WithLabelValues(OutcomeRejected, "TIME_OVERLAP"))
	assert.Equal(t, before+2, got)
}

func TestIncDemoReset(t *testing.T) {
	before := testutil.ToFloat64(demoResets.WithLabelValues("ok"))
	IncDemoReset("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(demoResets.WithLabelValues("ok")))
}

func TestObserveHTTP(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200"))
	ObserveHTTP("GET", "/health", 200, 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200")))
}
