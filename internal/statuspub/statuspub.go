// Package statuspub publishes sampler status messages on a ZeroMQ PUB socket.
// Each message is two frames: the tag, then the JSON body.
package statuspub

import (
	"fmt"

	zmq "github.com/pebbe/zmq4"
)

// Publisher owns one PUB socket. It is not safe for concurrent use; the
// sampler's ClientUpdater is its only caller.
type Publisher struct {
	socket   *zmq.Socket
	endpoint string
}

// New binds a PUB socket on all interfaces at port.
func New(port int) (*Publisher, error) {
	return Bind(fmt.Sprintf("tcp://*:%d", port))
}

// Bind binds a PUB socket at the given ZeroMQ endpoint.
func Bind(endpoint string) (*Publisher, error) {
	socket, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := socket.Bind(endpoint); err != nil {
		socket.Close()
		return nil, fmt.Errorf("bind status socket %s: %w", endpoint, err)
	}
	return &Publisher{socket: socket, endpoint: endpoint}, nil
}

// Publish sends tag and body as one two-frame message.
func (p *Publisher) Publish(tag string, body []byte) error {
	_, err := p.socket.SendMessage(tag, body)
	return err
}

// Close discards unsent messages and closes the socket.
func (p *Publisher) Close() error {
	p.socket.SetLinger(0)
	return p.socket.Close()
}
