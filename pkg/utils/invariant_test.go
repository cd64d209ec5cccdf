package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseInvariant(t *testing.T) {
	invariantsMetric.Reset() // Reset the metric to ensure a clean state for the test
	RaiseInvariant("invariant", "test", "This is a test invariant violation")
	assert.Equal(t, 1, GetMetricValue("invariant" /*module*/, "test" /*invariantType*/))
	assert.Equal(t, 0, GetMetricValue("invariant" /*module*/, "other" /*invariantType*/))
}

func TestUnsupportedLogLevelRaisesInvariant(t *testing.T) {
	invariantsMetric.Reset()
	_ = parseLogLevel("verbose")
	assert.Equal(t, 1, GetMetricValue("log" /*module*/, "unsupported_log_level" /*invariantType*/))
}
