package signals

import (
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"
)

// SamplerControl is the JSON-RPC service through which consumers open sessions
// and read snapshots.
type SamplerControl struct {
	sampler *Sampler
}

// SessionID names an open session.
type SessionID string

// ReadReply carries the result of one Read. The first Read of a session returns
// the snapshot; every later Read returns no data and EOF=true.
type ReadReply struct {
	Data string
	EOF  bool
}

// Open starts a new session.
func (sc *SamplerControl) Open(dummy *string, reply *SessionID) error {
	*reply = SessionID(sc.sampler.OpenSession().ID)
	return nil
}

// Read returns the session's one-shot snapshot.
func (sc *SamplerControl) Read(id *SessionID, reply *ReadReply) error {
	data, err := sc.sampler.Sessions.Read(string(*id))
	if err != nil {
		return err
	}
	reply.Data = string(data)
	reply.EOF = len(data) == 0
	return nil
}

// Close ends the session. The stored samples are not affected.
func (sc *SamplerControl) Close(id *SessionID, reply *bool) error {
	if err := sc.sampler.CloseSession(string(*id)); err != nil {
		return err
	}
	*reply = true
	return nil
}

// Status reports the sampler's current state.
func (sc *SamplerControl) Status(dummy *string, reply *ServerStatus) error {
	*reply = sc.sampler.Status()
	return nil
}

// SendAllStatus causes a broadcast to clients containing all broadcastable status info
func (sc *SamplerControl) SendAllStatus(dummy *string, reply *bool) error {
	sc.sampler.BroadcastStatus()
	*reply = true
	return nil
}

// RPCSettings tunes the background work of an RPCServer.
type RPCSettings struct {
	StatusInterval time.Duration // periodic STATUS broadcasts; 0 disables
	IdleTimeout    time.Duration // sessions unused this long are reaped; 0 disables
}

// DefaultRPCSettings broadcasts status every 2 seconds and reaps sessions idle
// for 10 minutes.
var DefaultRPCSettings = RPCSettings{
	StatusInterval: 2 * time.Second,
	IdleTimeout:    10 * time.Minute,
}

// RPCServer accepts JSON-RPC connections, one goroutine per connection.
type RPCServer struct {
	listener net.Listener
	server   *rpc.Server
	abort    chan struct{}
	wg       sync.WaitGroup

	conns     map[net.Conn]struct{}
	connsLock sync.Mutex
}

// StartRPCServer listens on addr and serves SamplerControl for sampler.
func StartRPCServer(sampler *Sampler, addr string, settings RPCSettings) (*RPCServer, error) {
	server := rpc.NewServer()
	if err := server.Register(&SamplerControl{sampler: sampler}); err != nil {
		return nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpc listen on %s: %w", addr, err)
	}
	rs := &RPCServer{
		listener: listener,
		server:   server,
		abort:    make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}

	if settings.StatusInterval > 0 {
		rs.every(settings.StatusInterval, sampler.BroadcastStatus)
	}
	if settings.IdleTimeout > 0 {
		period := settings.IdleTimeout / 4
		if period < time.Second {
			period = time.Second
		}
		rs.every(period, func() { sampler.ReapIdleSessions(settings.IdleTimeout) })
	}

	rs.wg.Add(1)
	go rs.acceptLoop()
	return rs, nil
}

// Addr returns the address the server is listening on.
func (rs *RPCServer) Addr() net.Addr {
	return rs.listener.Addr()
}

// Close stops accepting, drops open connections and waits for the background
// goroutines. Sessions stay open; only the sampler's reaper or Close removes them.
func (rs *RPCServer) Close() error {
	closeIfOpen(rs.abort)
	err := rs.listener.Close()
	rs.connsLock.Lock()
	for conn := range rs.conns {
		conn.Close()
	}
	rs.connsLock.Unlock()
	rs.wg.Wait()
	return err
}

func (rs *RPCServer) every(period time.Duration, f func()) {
	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-rs.abort:
				return
			case <-ticker.C:
				f()
			}
		}
	}()
}

func (rs *RPCServer) acceptLoop() {
	defer rs.wg.Done()
	for {
		conn, err := rs.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			ProblemLogger.Printf("rpc accept error: %v", err)
			select {
			case <-rs.abort:
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		UpdateLogger.Printf("new connection established from %s", conn.RemoteAddr())
		rs.connsLock.Lock()
		select {
		case <-rs.abort:
			// Close already swept the connection set.
			rs.connsLock.Unlock()
			conn.Close()
			return
		default:
		}
		rs.conns[conn] = struct{}{}
		rs.connsLock.Unlock()
		rs.wg.Add(1)
		go func() {
			defer rs.wg.Done()
			rs.server.ServeCodec(jsonrpc.NewServerCodec(conn))
			rs.connsLock.Lock()
			delete(rs.conns, conn)
			rs.connsLock.Unlock()
		}()
	}
}
