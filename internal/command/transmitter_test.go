package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu        sync.Mutex
	written   []uint32
	failUntil int // fail the first N calls across all frames
	calls     int
}

func (w *fakeWriter) WriteFrame(arbID uint32, _ [8]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failUntil {
		return errors.New("transport error")
	}
	w.written = append(w.written, arbID)
	return nil
}

func TestTransmit_WritesAllFramesInOrder(t *testing.T) {
	w := &fakeWriter{}
	tx := NewTransmitter(w, 0, 0)
	seq := FrameSequence{Frames: []Frame{{ArbID: 1}, {ArbID: 2}, {ArbID: 3}}}

	err := tx.Transmit(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, w.written)
	assert.EqualValues(t, 3, tx.Stats().FramesSent)
}

func TestTransmit_RetriesOnFailure(t *testing.T) {
	w := &fakeWriter{failUntil: 2}
	tx := NewTransmitter(w, 3, time.Millisecond)
	seq := FrameSequence{Frames: []Frame{{ArbID: 1}}}

	err := tx.Transmit(context.Background(), seq)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tx.Stats().Retries)
}

func TestTransmit_AbortsSequenceAfterExhaustingRetries(t *testing.T) {
	w := &fakeWriter{failUntil: 100}
	tx := NewTransmitter(w, 1, time.Millisecond)
	seq := FrameSequence{Frames: []Frame{{ArbID: 1}, {ArbID: 2}}}

	err := tx.Transmit(context.Background(), seq)
	require.Error(t, err)
	var txErr *TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 0, txErr.FrameIndex)
	assert.Empty(t, w.written)
	assert.EqualValues(t, 1, tx.Stats().FramesFailed)
}

func TestTransmit_CancelledDuringPreDelayAbandonsRemainder(t *testing.T) {
	w := &fakeWriter{}
	tx := NewTransmitter(w, 0, 0)
	seq := FrameSequence{Frames: []Frame{{ArbID: 1}, {ArbID: 2, PreDelay: 1000}}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := tx.Transmit(ctx, seq)
	require.Error(t, err)
	assert.Equal(t, []uint32{1}, w.written)
}
