package signals

import (
	"fmt"
	"sync"
)

// Channel identifies one of the two sampled signal lines.
type Channel int

// Names for the two channels
const (
	ChannelA Channel = iota
	ChannelB
)

// NumChannels is how many channels every Store holds.
const NumChannels = 2

func (c Channel) String() string {
	switch c {
	case ChannelA:
		return "A"
	case ChannelB:
		return "B"
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// Sample is a single logic level, 0 or 1.
type Sample uint8

// SampleFromLevel maps any nonzero level to 1.
func SampleFromLevel(level int) Sample {
	if level != 0 {
		return 1
	}
	return 0
}

// DefaultCapacity is the number of samples held per channel unless configured otherwise.
const DefaultCapacity = 50

// RingBuffer is a fixed-capacity circular store of samples for one channel.
// The filled most recent samples, oldest first, live at
// (writeIndex - filled + i) mod capacity.
type RingBuffer struct {
	storage    []Sample
	writeIndex int
	filled     int
	sync.Mutex // guards all of the above
}

// NewRingBuffer creates a RingBuffer that holds at most capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("NewRingBuffer capacity=%d, want > 0", capacity))
	}
	return &RingBuffer{storage: make([]Sample, capacity)}
}

// Capacity returns the fixed number of slots in the buffer.
func (rb *RingBuffer) Capacity() int {
	return len(rb.storage)
}

// Append stores s, evicting the oldest sample once the buffer is full.
func (rb *RingBuffer) Append(s Sample) {
	rb.Lock()
	defer rb.Unlock()
	rb.storage[rb.writeIndex] = s
	rb.writeIndex = (rb.writeIndex + 1) % len(rb.storage)
	if rb.filled < len(rb.storage) {
		rb.filled++
	}
}

// Filled returns how many valid samples the buffer holds.
func (rb *RingBuffer) Filled() int {
	rb.Lock()
	defer rb.Unlock()
	return rb.filled
}

// Snapshot returns a copy of the held samples, oldest first. It is empty (not nil)
// when nothing has been appended yet.
func (rb *RingBuffer) Snapshot() []Sample {
	rb.Lock()
	defer rb.Unlock()
	capacity := len(rb.storage)
	out := make([]Sample, rb.filled)
	for i := range out {
		out[i] = rb.storage[(rb.writeIndex-rb.filled+i+capacity)%capacity]
	}
	return out
}

// Store holds one RingBuffer per channel. The buffers are siblings; pairLock only
// makes a tick's two appends (and a reader's two snapshots) land together, so
// both channels always report the same fill level to a pair reader.
type Store struct {
	a        *RingBuffer
	b        *RingBuffer
	pairLock sync.Mutex
}

// NewStore creates a Store with the given per-channel capacity.
func NewStore(capacity int) *Store {
	return &Store{
		a: NewRingBuffer(capacity),
		b: NewRingBuffer(capacity),
	}
}

// Buffer returns the RingBuffer for channel c.
func (s *Store) Buffer(c Channel) *RingBuffer {
	switch c {
	case ChannelA:
		return s.a
	case ChannelB:
		return s.b
	}
	panic(fmt.Sprintf("Store.Buffer: no such channel %v", c))
}

// Capacity returns the per-channel capacity.
func (s *Store) Capacity() int {
	return s.a.Capacity()
}

// Append adds one sample to channel c alone.
func (s *Store) Append(c Channel, sample Sample) {
	s.Buffer(c).Append(sample)
}

// AppendPair adds one sample to each channel as a single step.
func (s *Store) AppendPair(a, b Sample) {
	s.pairLock.Lock()
	defer s.pairLock.Unlock()
	s.a.Append(a)
	s.b.Append(b)
}

// Snapshot returns the oldest-to-newest samples of channel c.
func (s *Store) Snapshot(c Channel) []Sample {
	return s.Buffer(c).Snapshot()
}

// SnapshotPair returns both channels' samples, taken with no tick in between.
func (s *Store) SnapshotPair() (a, b []Sample) {
	s.pairLock.Lock()
	defer s.pairLock.Unlock()
	return s.a.Snapshot(), s.b.Snapshot()
}

// Filled returns the number of samples held for channel c.
func (s *Store) Filled(c Channel) int {
	return s.Buffer(c).Filled()
}
