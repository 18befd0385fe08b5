package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestReRegistrationReturnsExistingCollector(t *testing.T) {
	reg := NewComponentRegistry("reqcoord_test", "registry")

	first := reg.NewCounter(prometheus.CounterOpts{Name: "ops_total", Help: "ops"})
	second := reg.NewCounter(prometheus.CounterOpts{Name: "ops_total", Help: "ops"})

	first.Inc()
	second.Inc()

	// Both handles point at the same underlying counter.
	require.Same(t, first, second)
}

func TestVectorsAreNamespaced(t *testing.T) {
	reg := NewComponentRegistry("reqcoord_test", "registry")
	vec := reg.NewCounterVec(prometheus.CounterOpts{Name: "labelled_total", Help: "labelled"}, []string{"outcome"})
	vec.WithLabelValues("ok").Inc()

	families, err := Registry().Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "reqcoord_test_registry_labelled_total" {
			found = true
		}
	}
	require.True(t, found)
}
