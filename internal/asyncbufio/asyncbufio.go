// Package asyncbufio provides a buffered writer whose Write never blocks the caller.
// Records are queued on a channel and written by a background goroutine; when the
// queue is full the record is dropped and counted.
package asyncbufio

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Writer provides asynchronous writing to an underlying io.Writer using buffered channels.
type Writer struct {
	dest          io.Writer
	writer        *bufio.Writer // Buffered writer: this does the writing
	flushNow      chan struct{} // Channel to signal the underlying writer to flush itself
	flushComplete chan struct{} // Channel to signal underlying writer flush is complete
	datachannel   chan []byte   // Channel to hold data before writing it
	flushInterval time.Duration
	dropped       atomic.Int64
	lifeLock      sync.Mutex // serializes Flush and Close
	closed        atomic.Bool
	err           error // first error from the underlying writer; owned by writeLoop until Close returns
}

// NewWriter creates a new Writer. Up to channelDepth records may wait to be
// written; the buffer is flushed at least every flushInterval.
func NewWriter(w io.Writer, channelDepth int, flushInterval time.Duration) *Writer {
	aw := &Writer{
		dest:          w,
		writer:        bufio.NewWriter(w),
		datachannel:   make(chan []byte, channelDepth),
		flushNow:      make(chan struct{}),
		flushComplete: make(chan struct{}),
		flushInterval: flushInterval,
	}
	go aw.writeLoop()
	return aw
}

// Write queues p for writing. The caller must not modify p afterwards. If the
// queue is full, p is dropped and io.ErrShortWrite returned.
func (aw *Writer) Write(p []byte) (int, error) {
	if aw.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	select {
	case aw.datachannel <- p:
		return len(p), nil
	default:
		aw.dropped.Add(1)
		return 0, io.ErrShortWrite
	}
}

// Dropped returns how many records were discarded because the queue was full.
func (aw *Writer) Dropped() int64 {
	return aw.dropped.Load()
}

// Flush writes every queued record to the underlying writer and blocks until done.
func (aw *Writer) Flush() error {
	aw.lifeLock.Lock()
	defer aw.lifeLock.Unlock()
	if aw.closed.Load() {
		return io.ErrClosedPipe
	}
	aw.flushNow <- struct{}{}
	<-aw.flushComplete
	return nil
}

// Close flushes remaining data, waits for the write loop to finish and closes the
// underlying writer if it is an io.Closer. Later calls do nothing.
func (aw *Writer) Close() error {
	aw.lifeLock.Lock()
	defer aw.lifeLock.Unlock()
	if aw.closed.Load() {
		return nil
	}
	aw.closed.Store(true)
	close(aw.flushNow)
	<-aw.flushComplete
	err := aw.err
	if c, ok := aw.dest.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (aw *Writer) writeLoop() {
	ticker := time.NewTicker(aw.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-aw.datachannel:
			aw.write(data)

		case _, ok := <-aw.flushNow:
			aw.flush()
			aw.flushComplete <- struct{}{}
			if !ok {
				return
			}

		case <-ticker.C:
			aw.flush()
		}
	}
}

func (aw *Writer) write(data []byte) {
	if _, err := aw.writer.Write(data); err != nil && aw.err == nil {
		aw.err = err
	}
}

// flush empties the queue, then flushes the bufio.Writer.
func (aw *Writer) flush() {
	for {
		select {
		case data := <-aw.datachannel:
			aw.write(data)
		default:
			if err := aw.writer.Flush(); err != nil && aw.err == nil {
				aw.err = err
			}
			return
		}
	}
}
