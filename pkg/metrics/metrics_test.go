package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ExpiryFired.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.ExpiryFired))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ExpiryFired))
}

func TestWriteText(t *testing.T) {
	m := New()
	m.MessagesDeleted.WithLabelValues("expired").Add(2)
	m.PersistFailures.Inc()

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	assert.Contains(t, buf.String(), `chatter_messages_deleted_total{reason="expired"} 2`)
	assert.Contains(t, buf.String(), "chatter_persist_failures_total 1")
}
