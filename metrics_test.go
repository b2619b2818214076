package yrb

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	assert.Error(t, RegisterMetrics(reg))

	committed := testutil.ToFloat64(TransactionCount.WithLabelValues("committed"))
	failures := testutil.ToFloat64(ConversionFailures.WithLabelValues("write"))
	deliveries := testutil.ToFloat64(ObserverDeliveries.WithLabelValues("array"))

	d := NewDocument(WithClientID(1))
	arr, err := d.GetArray("a")
	require.NoError(t, err)
	arr.Observe(func([]ArrayChange) {})
	require.NoError(t, d.Transaction(func(tx *Transaction) error {
		assert.Error(t, arr.PushBack(tx, struct{}{}))
		return arr.PushBack(tx, 1)
	}))

	// GetArray commits too
	assert.Equal(t, committed+2, testutil.ToFloat64(TransactionCount.WithLabelValues("committed")))
	assert.Equal(t, failures+1, testutil.ToFloat64(ConversionFailures.WithLabelValues("write")))
	assert.Equal(t, deliveries+1, testutil.ToFloat64(ObserverDeliveries.WithLabelValues("array")))

	elements := testutil.ToFloat64(ObserverDeliveries.WithLabelValues("xml_element"))
	attributes := testutil.ToFloat64(ObserverDeliveries.WithLabelValues("xml_element_attributes"))
	el, err := d.GetXmlElement("div")
	require.NoError(t, err)
	el.ObserveAttributes(func(map[string]MapChange) {})
	require.NoError(t, d.Transaction(func(tx *Transaction) error {
		return el.InsertAttribute(tx, "id", "1")
	}))
	assert.Equal(t, attributes+1, testutil.ToFloat64(ObserverDeliveries.WithLabelValues("xml_element_attributes")))
	assert.Equal(t, elements, testutil.ToFloat64(ObserverDeliveries.WithLabelValues("xml_element")))
}
