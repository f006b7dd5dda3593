package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	assert.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.TxFrames.WithLabelValues("p1").Inc()
	m.TxBytes.WithLabelValues("p1").Add(42)
	m.RxPending.WithLabelValues("p1").Set(3)

	assert.Equal(t, float64(1), counterValue(t, m.TxFrames.WithLabelValues("p1")))
	assert.Equal(t, float64(42), counterValue(t, m.TxBytes.WithLabelValues("p1")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
