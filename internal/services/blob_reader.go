package services

import (
	"io"
	"sync"

	"annotation-service/internal/metrics"
)

// countingReadCloser counts the bytes streamed from blob storage and reports
// them once, on Close.
type countingReadCloser struct {
	rc      io.ReadCloser
	metrics *metrics.Metrics
	bytes   int64
	once    sync.Once
}

func newCountingReadCloser(rc io.ReadCloser, m *metrics.Metrics) *countingReadCloser {
	return &countingReadCloser{rc: rc, metrics: m}
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.bytes += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	c.once.Do(func() { c.metrics.BlobBytesRead(c.bytes) })
	return c.rc.Close()
}

// Bytes returns how many bytes have been read so far.
func (c *countingReadCloser) Bytes() int64 { return c.bytes }
