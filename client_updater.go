package signals

// Contains the ClientUpdater object, which publishes JSON-encoded messages
// giving the latest sampler state.

import (
	"encoding/json"
	"sync"

	"github.com/EzeErlicher/signals/internal/updatequeue"
)

// ClientUpdate carries the messages to be published on the status port.
type ClientUpdate struct {
	tag   string
	state interface{}
}

// StatusPublisher sends one tagged message to every subscribed client.
type StatusPublisher interface {
	Publish(tag string, body []byte) error
	Close() error
}

// maxQueuedUpdates bounds memory if the publisher stalls.
const maxQueuedUpdates = 1000

// ClientUpdater forwards updates to a StatusPublisher from its own goroutine, so
// senders (the poller among them) never wait on the network.
type ClientUpdater struct {
	queue *updatequeue.Queue[ClientUpdate]
	pub   StatusPublisher
	done  chan struct{}

	closed    bool
	closeLock sync.RWMutex // guards closed against sends racing Close
}

// NewClientUpdater starts forwarding updates to pub.
func NewClientUpdater(pub StatusPublisher) *ClientUpdater {
	cu := &ClientUpdater{
		queue: updatequeue.New[ClientUpdate](maxQueuedUpdates),
		pub:   pub,
		done:  make(chan struct{}),
	}
	go cu.run()
	return cu
}

// Send queues an update. It does not block on the publisher. Updates sent after
// Close are discarded.
func (cu *ClientUpdater) Send(tag string, state interface{}) {
	cu.closeLock.RLock()
	defer cu.closeLock.RUnlock()
	if cu.closed {
		return
	}
	cu.queue.In() <- ClientUpdate{tag: tag, state: state}
}

// Dropped returns how many updates were discarded because the publisher fell behind.
func (cu *ClientUpdater) Dropped() int64 {
	return cu.queue.Dropped()
}

// Close publishes any queued updates, then closes the publisher.
func (cu *ClientUpdater) Close() error {
	cu.closeLock.Lock()
	if cu.closed {
		cu.closeLock.Unlock()
		return nil
	}
	cu.closed = true
	close(cu.queue.In())
	cu.closeLock.Unlock()
	<-cu.done
	return cu.pub.Close()
}

func (cu *ClientUpdater) run() {
	defer close(cu.done)
	for update := range cu.queue.Out() {
		message, err := json.Marshal(update.state)
		if err != nil {
			ProblemLogger.Printf("cannot encode %s update: %v", update.tag, err)
			continue
		}
		if err := cu.pub.Publish(update.tag, message); err != nil {
			ProblemLogger.Printf("cannot publish %s update: %v", update.tag, err)
			continue
		}
		if update.tag != "STATUS" {
			UpdateLogger.Printf("%s %s", update.tag, message)
		}
	}
}

// discardPublisher is used when no status port is configured.
type discardPublisher struct{}

func (discardPublisher) Publish(string, []byte) error { return nil }
func (discardPublisher) Close() error                 { return nil }

// DiscardPublisher returns a StatusPublisher that drops everything.
func DiscardPublisher() StatusPublisher {
	return discardPublisher{}
}
