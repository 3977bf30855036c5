package command

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FrameWriter is the abstract transport the transmitter writes frames
// to: the SLCAN client in production, a fake in tests. It must serialize
// concurrent writes itself or be wrapped by a transmitter-owned mutex —
// this package always calls it from under Transmitter's single writer
// lock, so implementations need not be internally safe for
// concurrent use.
type FrameWriter interface {
	WriteFrame(arbID uint32, payload [8]byte) error
}

// Stats holds the Transmitter's atomically-updated counters.
type Stats struct {
	FramesSent   uint64
	FramesFailed uint64
	Retries      uint64
	lastErrMu    sync.Mutex
	lastErr      error
}

// LastError returns the most recently observed transport error, if any.
func (s *Stats) LastError() error {
	s.lastErrMu.Lock()
	defer s.lastErrMu.Unlock()
	return s.lastErr
}

func (s *Stats) setLastError(err error) {
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
}

// Transmitter writes a FrameSequence to the bus one frame at a time,
// honoring each frame's pre-delay and retrying transport failures.
// It serializes all writes under mu since the underlying SLCAN
// stream is a single shared byte stream.
type Transmitter struct {
	mu         sync.Mutex
	writer     FrameWriter
	retryCount int
	retryDelay time.Duration
	stats      Stats
}

// NewTransmitter builds a Transmitter over writer with the given retry
// policy (the retry_count and retry_delay_ms configuration options).
func NewTransmitter(writer FrameWriter, retryCount int, retryDelay time.Duration) *Transmitter {
	return &Transmitter{writer: writer, retryCount: retryCount, retryDelay: retryDelay}
}

// Stats returns a snapshot of the transmitter's counters.
func (t *Transmitter) Stats() Stats {
	return Stats{
		FramesSent:   atomic.LoadUint64(&t.stats.FramesSent),
		FramesFailed: atomic.LoadUint64(&t.stats.FramesFailed),
		Retries:      atomic.LoadUint64(&t.stats.Retries),
		lastErr:      t.stats.LastError(),
	}
}

// Transmit writes every frame of seq in order. ctx cancellation aborts
// a pending pre-delay sleep and the remaining frames are abandoned.
// A transport failure on any frame, after exhausting retries,
// aborts the remainder of the sequence and returns *TxError; frames
// already written are not retracted.
func (t *Transmitter) Transmit(ctx context.Context, seq FrameSequence) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, f := range seq.Frames {
		if f.PreDelay > 0 {
			if err := sleepContext(ctx, time.Duration(f.PreDelay)*time.Millisecond); err != nil {
				return err
			}
		}

		if err := t.writeWithRetry(f); err != nil {
			atomic.AddUint64(&t.stats.FramesFailed, 1)
			t.stats.setLastError(err)
			return &TxError{FrameIndex: i, Underlying: err}
		}
		atomic.AddUint64(&t.stats.FramesSent, 1)
	}
	return nil
}

func (t *Transmitter) writeWithRetry(f Frame) error {
	var lastErr error
	for attempt := 0; attempt <= t.retryCount; attempt++ {
		if attempt > 0 {
			atomic.AddUint64(&t.stats.Retries, 1)
			time.Sleep(t.retryDelay)
		}
		if err := t.writer.WriteFrame(f.ArbID, f.Payload); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// sleepContext sleeps for d or returns ctx.Err() if ctx is cancelled
// first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
