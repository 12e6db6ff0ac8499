package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordPayment(t *testing.T) {
	before := testutil.ToFloat64(Business.PaymentsTotal.WithLabelValues("out_of_order"))
	RecordPayment("out_of_order")
	RecordPayment("out_of_order")
	assert.Equal(t, before+2, testutil.ToFloat64(Business.PaymentsTotal.WithLabelValues("out_of_order")))
}

func TestSessionGauges(t *testing.T) {
	SetActiveSessions(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(Business.SessionsActive))

	before := testutil.ToFloat64(Business.SessionsExpiredTotal)
	RecordSessionsExpired(3)
	assert.Equal(t, before+3, testutil.ToFloat64(Business.SessionsExpiredTotal))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTP.RequestsTotal.WithLabelValues("POST", "/sessions", "201"))
	RecordHTTPRequest("POST", "/sessions", "201", 15*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTP.RequestsTotal.WithLabelValues("POST", "/sessions", "201")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(HTTP.RequestDuration), 1)
}

func TestRecordEventPublished(t *testing.T) {
	RecordEventPublished("loan.approved", "success")
	assert.GreaterOrEqual(t, testutil.ToFloat64(Business.EventsPublishedTotal.WithLabelValues("loan.approved", "success")), float64(1))
}

func TestRecordEventConsumed(t *testing.T) {
	before := testutil.ToFloat64(Consumer.EventsConsumedTotal.WithLabelValues("installment.due", "success"))
	RecordEventConsumed("installment.due", "success")
	assert.Equal(t, before+1, testutil.ToFloat64(Consumer.EventsConsumedTotal.WithLabelValues("installment.due", "success")))
}
