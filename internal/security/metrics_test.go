package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	t.Setenv("REGION", "eu-west")

	labels, err := ParseMetricsLabels("")
	require.NoError(t, err)
	assert.Nil(t, labels)

	labels, err = ParseMetricsLabels("service=collections,region=${REGION}")
	require.NoError(t, err)
	assert.Equal(t, prometheus.Labels{"service": "collections", "region": "eu-west"}, labels)

	_, err = ParseMetricsLabels("novalue")
	assert.Error(t, err)
	_, err = ParseMetricsLabels("1bad=x")
	assert.Error(t, err)
}
