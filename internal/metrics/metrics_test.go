package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/rendis/flowcraft/pkg/schema"
)

func TestObserveValidation(t *testing.T) {
	invalidBefore := testutil.ToFloat64(ValidationRuns.WithLabelValues("invalid"))
	startBefore := testutil.ToFloat64(ValidationIssues.WithLabelValues(schema.IssueMissingStart, "error"))
	cycleBefore := testutil.ToFloat64(ValidationIssues.WithLabelValues(schema.IssuePotentialCycle, "warning"))

	r := &schema.ValidationResult{}
	r.AddError("nodes", schema.IssueMissingStart, "no start")
	r.AddWarning("connections", schema.IssuePotentialCycle, "a<->b")
	r.AddWarning("connections", schema.IssuePotentialCycle, "b<->a")
	ObserveValidation(r)
	ObserveValidation(nil)

	assert.Equal(t, invalidBefore+1, testutil.ToFloat64(ValidationRuns.WithLabelValues("invalid")))
	assert.Equal(t, startBefore+1, testutil.ToFloat64(ValidationIssues.WithLabelValues(schema.IssueMissingStart, "error")))
	assert.Equal(t, cycleBefore+2, testutil.ToFloat64(ValidationIssues.WithLabelValues(schema.IssuePotentialCycle, "warning")))
}

func TestObserveOperation(t *testing.T) {
	okBefore := testutil.ToFloat64(FlowchartOperations.WithLabelValues("create", "ok"))
	errBefore := testutil.ToFloat64(FlowchartOperations.WithLabelValues("create", "error"))

	ObserveOperation("create", nil)
	ObserveOperation("create", errors.New("boom"))
	ObserveOperation("create", nil)

	assert.Equal(t, okBefore+2, testutil.ToFloat64(FlowchartOperations.WithLabelValues("create", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(FlowchartOperations.WithLabelValues("create", "error")))
}

func TestObserveRequest(t *testing.T) {
	ObserveRequest("GET", "/api/flowcharts", "200", 15*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(HTTPRequestDuration), 1)
}
