package pathsync

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewBandwidthLimiter caps aggregate copy throughput to bytesPerSec, shared
// by all workers. The burst is at most 1 MiB so regular copy chunks pass
// without splitting. A non-positive rate means unlimited and returns nil.
func NewBandwidthLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

type rateLimitedWriter struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
}

func (rw *rateLimitedWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		n := min(len(p), rw.limiter.Burst())
		if err := rw.limiter.WaitN(rw.ctx, n); err != nil {
			return written, err
		}
		m, err := rw.w.Write(p[:n])
		written += m
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}
