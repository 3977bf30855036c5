// Package slcan implements the bridge's bus transport: an
// SLCAN-over-TCP connection that frames ASCII lines of the form
// T<id:8hex><len:1>[<data:2N hex>]\r, reconnecting on transport loss.
package slcan

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RawFrame is the parsed result the core consumes from the wire:
// an extended-format arbitration id, its payload bytes, and the
// declared length.
type RawFrame struct {
	ArbID  uint32
	Data   []byte
	Length int
}

// Conn is a reconnecting SLCAN-over-TCP client. Reads are delivered on
// Frames(); writes are serialized internally since the underlying
// stream is a single shared byte sequence.
type Conn struct {
	addr          string
	reconnectWait time.Duration
	log           *zap.Logger

	mu   sync.Mutex
	conn net.Conn
	wr   *bufio.Writer

	frames chan RawFrame
}

// Dial opens an SLCAN-over-TCP connection to addr, with automatic
// reconnection every reconnectWait on loss. It does not block until
// connected; the first connection attempt happens in Run.
func Dial(addr string, reconnectWait time.Duration, log *zap.Logger) *Conn {
	return &Conn{
		addr:          addr,
		reconnectWait: reconnectWait,
		log:           log,
		frames:        make(chan RawFrame, 256),
	}
}

// Frames returns the channel of successfully parsed extended frames.
// Non-extended ('t'-prefixed) lines are dropped silently; malformed
// lines are dropped with a warning.
func (c *Conn) Frames() <-chan RawFrame {
	return c.frames
}

// Run connects and reads lines until ctx is cancelled, reconnecting on
// any read or dial error. It returns only when ctx is done.
func (c *Conn) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.runOnce(ctx); err != nil {
			c.log.Warn("slcan connection lost, reconnecting", zap.Error(err), zap.String("addr", c.addr))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectWait):
		}
	}
}

func (c *Conn) runOnce(ctx context.Context) error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.wr = bufio.NewWriter(conn)
	c.mu.Unlock()

	c.log.Info("slcan connected", zap.String("addr", c.addr))

	sc := bufio.NewScanner(conn)
	sc.Split(scanCR)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := sc.Text()
		frame, ok, err := parseLine(line)
		if err != nil {
			c.log.Warn("slcan malformed line", zap.String("line", line), zap.Error(err))
			continue
		}
		if !ok {
			continue // non-extended frame, ignored
		}
		select {
		case c.frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("slcan connection closed by peer")
}

// scanCR splits on '\r', the SLCAN line terminator.
func scanCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseLine parses one SLCAN line. ok is false for recognized-but-out-
// of-scope frames (the 't' standard-frame prefix); err is non-nil for
// malformed extended frames.
func parseLine(line string) (RawFrame, bool, error) {
	if line == "" {
		return RawFrame{}, false, nil
	}
	switch line[0] {
	case 't':
		return RawFrame{}, false, nil
	case 'T':
	default:
		return RawFrame{}, false, fmt.Errorf("unrecognized frame prefix %q", line[:1])
	}

	if len(line) < 10 {
		return RawFrame{}, false, fmt.Errorf("line too short: %q", line)
	}

	idHex := line[1:9]
	id64, err := strconv.ParseUint(idHex, 16, 32)
	if err != nil {
		return RawFrame{}, false, fmt.Errorf("bad arbitration id %q: %w", idHex, err)
	}

	length, err := strconv.Atoi(line[9:10])
	if err != nil || length < 0 || length > 8 {
		return RawFrame{}, false, fmt.Errorf("bad length field %q", line[9:10])
	}

	wantHexLen := 10 + length*2
	if len(line) < wantHexLen {
		return RawFrame{}, false, fmt.Errorf("line shorter than declared length: %q", line)
	}
	data, err := hex.DecodeString(line[10:wantHexLen])
	if err != nil {
		return RawFrame{}, false, fmt.Errorf("bad payload hex %q: %w", line[10:wantHexLen], err)
	}

	return RawFrame{ArbID: uint32(id64), Data: data, Length: length}, true, nil
}

// WriteFrame serializes arbID/payload as an SLCAN extended-frame line
// and writes it to the connection. It implements command.FrameWriter.
func (c *Conn) WriteFrame(arbID uint32, payload [8]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wr == nil {
		return fmt.Errorf("slcan: not connected")
	}

	line := fmt.Sprintf("T%08X8%s\r", arbID, hex.EncodeToString(payload[:]))
	if _, err := c.wr.WriteString(line); err != nil {
		return err
	}
	return c.wr.Flush()
}
