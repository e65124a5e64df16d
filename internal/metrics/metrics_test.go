package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAssistantReply(t *testing.T) {
	m := New()
	m.RecordAssistantReply("degraded", 10*time.Millisecond)
	m.RecordAssistantReply("degraded", 10*time.Millisecond)
	m.RecordAssistantReply("live", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AssistantReplies.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssistantReplies.WithLabelValues("live")))
}

func TestRecordCacheLookup(t *testing.T) {
	m := New()
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
}

func TestNewIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.EscalationsTotal.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.EscalationsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.EscalationsTotal))
}
