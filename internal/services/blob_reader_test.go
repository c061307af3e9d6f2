package services

import (
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"annotation-service/internal/metrics"
)

func TestCountingReadCloser(t *testing.T) {
	rc := newCountingReadCloser(io.NopCloser(strings.NewReader("hello world")), metrics.NewMetrics(prometheus.NewRegistry()))
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(11), rc.Bytes())
	require.NoError(t, rc.Close())
	require.NoError(t, rc.Close())

	var nilMetrics *metrics.Metrics
	rc = newCountingReadCloser(io.NopCloser(strings.NewReader("x")), nilMetrics)
	assert.NoError(t, rc.Close())
}
