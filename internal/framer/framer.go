// Package framer owns the two halves of the TCP connection and decouples
// socket I/O from message consumption via a background read pump and a
// length-prefix deframing task connected by bounded channels.
package framer

import (
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/jkantaria/pgcolumn/internal/pgerr"
	"github.com/jkantaria/pgcolumn/internal/wire"
)

const (
	// DefaultReadBufferSize is the fixed-size buffer the I/O task reads into.
	DefaultReadBufferSize = 8192
	// DefaultFrameChannelCapacity is the frame channel's capacity.
	DefaultFrameChannelCapacity = 100
)

// Framer reads length-prefixed protocol frames off a net.Conn in a
// background goroutine pair: an I/O task that pumps raw reads into a byte
// channel, and a deframe task that reassembles complete frames from the
// accumulated bytes and pushes them onto a frame channel. The write side is
// a direct full-write of a serialized frame — no background pump needed.
type Framer struct {
	conn net.Conn

	byteCh  chan []byte
	frameCh chan wire.RawFrame
	doneCh  chan struct{}

	ioErr atomic.Value // holds error; set once the read pump sees a socket error/EOF
}

// New starts the background I/O and deframe tasks for conn. readBufSize and
// frameChanCap default to DefaultReadBufferSize/DefaultFrameChannelCapacity
// when zero.
func New(conn net.Conn, readBufSize, frameChanCap int) *Framer {
	if readBufSize <= 0 {
		readBufSize = DefaultReadBufferSize
	}
	if frameChanCap <= 0 {
		frameChanCap = DefaultFrameChannelCapacity
	}

	f := &Framer{
		conn:    conn,
		byteCh:  make(chan []byte, readBufSize),
		frameCh: make(chan wire.RawFrame, frameChanCap),
		doneCh:  make(chan struct{}),
	}

	go f.ioPump(readBufSize)
	go f.deframe()

	return f
}

// ioPump loops issuing reads into a fixed-size buffer and forwarding each
// read's bytes into byteCh. It terminates silently on EOF or error, closing
// byteCh so the deframe task can shut down in turn.
func (f *Framer) ioPump(bufSize int) {
	defer close(f.byteCh)
	buf := make([]byte, bufSize)
	for {
		n, err := f.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case f.byteCh <- chunk:
			case <-f.doneCh:
				return
			}
		}
		if err != nil {
			f.ioErr.Store(err)
			return
		}
	}
}

// Healthy reports whether the background read pump is still running with
// no observed socket error — it does not perform any I/O of its own, since
// a second concurrent reader on the same net.Conn would race with ioPump
// and risk stealing bytes out of the frame stream. Callers that want an
// active liveness probe should issue a real protocol round trip instead.
func (f *Framer) Healthy() bool {
	select {
	case <-f.doneCh:
		return false
	default:
	}
	return f.ioErr.Load() == nil
}

// deframe maintains a resizable byte accumulator and, whenever it holds a
// complete frame, drains it and pushes (type, body) onto frameCh.
func (f *Framer) deframe() {
	defer close(f.frameCh)

	var acc []byte
	for chunk := range f.byteCh {
		acc = append(acc, chunk...)

		for {
			if len(acc) < 5 {
				break
			}
			msgType := acc[0]
			length := int(uint32(acc[1])<<24 | uint32(acc[2])<<16 | uint32(acc[3])<<8 | uint32(acc[4]))
			total := 5 + (length - 4)
			if length < 4 || len(acc) < total {
				break
			}

			body := make([]byte, length-4)
			copy(body, acc[5:total])
			acc = acc[total:]

			select {
			case f.frameCh <- wire.RawFrame{Type: msgType, Body: body}:
			case <-f.doneCh:
				return
			}
		}
	}
}

// ReadFrame awaits the next complete frame. It returns io.EOF when the
// connection has been closed and no more frames remain.
func (f *Framer) ReadFrame() (wire.RawFrame, error) {
	frame, ok := <-f.frameCh
	if !ok {
		return wire.RawFrame{}, io.EOF
	}
	return frame, nil
}

// ReadTyped reads the next frame and identifies it without fully parsing —
// the hot path for DataRow frames never pays for a full parse.
func (f *Framer) ReadTyped() (wire.RawTypedBackendMessage, error) {
	frame, err := f.ReadFrame()
	if err != nil {
		return wire.RawTypedBackendMessage{}, pgerr.NewIOReadError(err)
	}
	typed, err := wire.Identify(frame)
	if err != nil {
		return wire.RawTypedBackendMessage{}, err
	}
	return typed, nil
}

// WriteMessage serializes and writes a frontend message directly to the
// socket; the write side needs no background pump.
func (f *Framer) WriteMessage(m wire.FrontendMessage) error {
	buf, err := wire.EncodeMessage(m)
	if err != nil {
		return err
	}
	if _, err := f.conn.Write(buf); err != nil {
		return fmt.Errorf("framer: write: %w", err)
	}
	return nil
}

// Close tears down the background tasks and closes the underlying connection.
func (f *Framer) Close() error {
	select {
	case <-f.doneCh:
	default:
		close(f.doneCh)
	}
	return f.conn.Close()
}
