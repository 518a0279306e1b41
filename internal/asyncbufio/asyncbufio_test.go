package asyncbufio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	f, err := os.CreateTemp("", "trace")
	require.Nil(t, err)
	defer os.Remove(f.Name())

	w := NewWriter(f, 100, time.Second)
	var expect strings.Builder
	for i := range 100 {
		line := fmt.Appendf(nil, "%d %d%d\n", 1700000000000+int64(i)*200, i%2, (i/2)%2)
		expect.Write(line)
		_, err := w.Write(line)
		assert.Nil(t, err)
		if i%25 == 19 {
			assert.Nil(t, w.Flush())
		}
	}
	require.Nil(t, w.Close())
	assert.Equal(t, int64(0), w.Dropped())

	contents, err := os.ReadFile(f.Name())
	require.Nil(t, err)
	assert.Equal(t, expect.String(), string(contents))

	// Close closed the file, and a second Close is harmless.
	_, err = f.Write([]byte("x"))
	assert.NotNil(t, err)
	assert.Nil(t, w.Close())
	_, err = w.Write([]byte("late\n"))
	assert.Equal(t, io.ErrClosedPipe, err)
	assert.Equal(t, io.ErrClosedPipe, w.Flush())
}

func TestPeriodicFlush(t *testing.T) {
	var buf safeBuffer
	w := NewWriter(&buf, 10, 5*time.Millisecond)
	defer w.Close()
	w.Write([]byte("1700000000000 10\n"))
	assert.Eventually(t, func() bool {
		return buf.String() == "1700000000000 10\n"
	}, time.Second, 5*time.Millisecond)
}

func TestFlushRacingClose(t *testing.T) {
	for range 50 {
		var buf safeBuffer
		w := NewWriter(&buf, 10, time.Hour)
		w.Write([]byte("1700000000000 11\n"))
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 20 {
				if err := w.Flush(); err != nil {
					assert.Equal(t, io.ErrClosedPipe, err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			assert.Nil(t, w.Close())
		}()
		wg.Wait()
		assert.Equal(t, "1700000000000 11\n", buf.String())
	}
}

func TestFullQueueDrops(t *testing.T) {
	// No write loop is running, so nothing drains the queue.
	w := &Writer{datachannel: make(chan []byte, 2)}
	for range 5 {
		w.Write([]byte("1700000000000 01\n"))
	}
	assert.Equal(t, int64(3), w.Dropped())
}

type safeBuffer struct {
	buf bytes.Buffer
	sync.Mutex
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.Lock()
	defer b.Unlock()
	return b.buf.String()
}
