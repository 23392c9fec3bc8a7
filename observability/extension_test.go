package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/observability"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/types"
)

func value(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	require.True(t, ok)
	return testutil.ToFloat64(pc)
}

func TestPaymentCounters(t *testing.T) {
	f := observability.NewPrometheusFactory()
	m := observability.NewMetricsExtension(f)
	ctx := context.Background()

	p := &payment.Payment{Amount: types.KES(8736), Status: payment.StatusCompleted}
	require.NoError(t, m.OnPaymentTransitioned(ctx, p, payment.StatusPending))
	p.Status = payment.StatusRefunded
	require.NoError(t, m.OnPaymentTransitioned(ctx, p, payment.StatusCompleted))

	assert.Equal(t, 1.0, value(t, m.PaymentCompleted))
	assert.Equal(t, 1.0, value(t, m.PaymentRefunded))
	assert.Equal(t, 0.0, value(t, m.PaymentFailed))
}

func TestChapterCompletedCountsOnce(t *testing.T) {
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory())
	ctx := context.Background()

	draft := &chapter.Chapter{Status: chapter.StatusDraft}
	done := &chapter.Chapter{Status: chapter.StatusCompleted}
	require.NoError(t, m.OnChapterUpdated(ctx, draft, done))
	require.NoError(t, m.OnChapterUpdated(ctx, done, done))

	assert.Equal(t, 2.0, value(t, m.ChapterUpdated))
	assert.Equal(t, 1.0, value(t, m.ChapterCompleted))
}

func TestPayoutCounters(t *testing.T) {
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory())
	ctx := context.Background()

	require.NoError(t, m.OnPayoutChecked(ctx, "w1", types.KES(100), nil))
	require.NoError(t, m.OnPayoutChecked(ctx, "w1", types.KES(100), errors.New("too much")))

	assert.Equal(t, 2.0, value(t, m.PayoutChecks))
	assert.Equal(t, 1.0, value(t, m.PayoutRejected))
}

func TestFactoryReusesCollectors(t *testing.T) {
	f := observability.NewPrometheusFactory()
	a := f.Counter("thesisdesk.chapter.created")
	b := f.Counter("thesisdesk.chapter.created")
	a.Inc()
	assert.Equal(t, 1.0, value(t, b))

	families, err := f.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "thesisdesk_chapter_created_total" {
			found = true
		}
	}
	assert.True(t, found)
}
