package signals

import (
	"net/rpc"
	"net/rpc/jsonrpc"
	"strings"
	"testing"
	"time"

	"github.com/EzeErlicher/signals/internal/pins"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleClient(t *testing.T, rs *RPCServer) *rpc.Client {
	t.Helper()
	client, err := jsonrpc.Dial("tcp", rs.Addr().String())
	require.Nil(t, err, "could not connect to RPC server")
	t.Cleanup(func() { client.Close() })
	return client
}

func startTestServer(t *testing.T, settings RPCSettings) (*Sampler, *RPCServer, *fakePublisher) {
	t.Helper()
	latch := &pins.Latch{}
	latch.SetLevels(1, 0)
	pub := &fakePublisher{}
	sampler, err := NewSampler(SamplerSetup{
		Inputs:   latch,
		Capacity: 5,
		Tick:     time.Millisecond,
		Updater:  NewClientUpdater(pub),
	})
	require.Nil(t, err)
	rs, err := StartRPCServer(sampler, "127.0.0.1:0", settings)
	require.Nil(t, err)
	t.Cleanup(func() {
		rs.Close()
		sampler.Shutdown()
	})
	return sampler, rs, pub
}

func TestServer(t *testing.T) {
	sampler, rs, pub := startTestServer(t, RPCSettings{})
	client := simpleClient(t, rs)

	// Before any tick the first read is empty and ends the session's data.
	var id SessionID
	dummy := ""
	require.Nil(t, client.Call("SamplerControl.Open", &dummy, &id))
	var reply ReadReply
	require.Nil(t, client.Call("SamplerControl.Read", &id, &reply))
	assert.Equal(t, "", reply.Data)
	assert.True(t, reply.EOF)

	require.Nil(t, sampler.Start())
	require.Eventually(t, func() bool { return sampler.Store.Filled(ChannelA) == 5 },
		2*time.Second, time.Millisecond)

	var fresh SessionID
	require.Nil(t, client.Call("SamplerControl.Open", &dummy, &fresh))
	assert.NotEqual(t, id, fresh)
	reply = ReadReply{}
	require.Nil(t, client.Call("SamplerControl.Read", &fresh, &reply))
	assert.Equal(t, "1111100000", reply.Data)
	assert.False(t, reply.EOF)

	reply = ReadReply{}
	require.Nil(t, client.Call("SamplerControl.Read", &fresh, &reply))
	assert.Equal(t, "", reply.Data)
	assert.True(t, reply.EOF)

	var status ServerStatus
	require.Nil(t, client.Call("SamplerControl.Status", &dummy, &status))
	assert.True(t, status.Running)
	assert.Equal(t, 5, status.Capacity)
	assert.Equal(t, 5, status.Filled)
	assert.Equal(t, 2, status.SessionsOpen)
	assert.Equal(t, int64(2), status.SessionsOpened)
	assert.Equal(t, sampler.RunID, status.RunID)

	var okay bool
	require.Nil(t, client.Call("SamplerControl.Close", &fresh, &okay))
	assert.True(t, okay)
	err := client.Call("SamplerControl.Read", &fresh, &reply)
	require.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), ErrInvalidSession.Error()))
	assert.NotNil(t, client.Call("SamplerControl.Close", &fresh, &okay))

	require.Nil(t, client.Call("SamplerControl.SendAllStatus", &dummy, &okay))
	require.Nil(t, sampler.Shutdown())
	tags := pub.tags()
	assert.Contains(t, tags, "SNAPSHOT")
	assert.Contains(t, tags, "STATUS")
}

func TestServerBackgroundWork(t *testing.T) {
	sampler, rs, pub := startTestServer(t, RPCSettings{
		StatusInterval: 5 * time.Millisecond,
		IdleTimeout:    time.Nanosecond,
	})
	simpleClient(t, rs)
	sampler.OpenSession()
	sampler.OpenSession()

	// The reaper runs once a second at most.
	require.Eventually(t, func() bool { return sampler.Sessions.Len() == 0 },
		3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(pub.tags()) >= 3 },
		time.Second, 5*time.Millisecond)

	// Close returns even with a client still connected.
	assert.Nil(t, rs.Close())
}

func TestServerAddressInUse(t *testing.T) {
	sampler, rs, _ := startTestServer(t, RPCSettings{})
	_, err := StartRPCServer(sampler, rs.Addr().String(), RPCSettings{})
	assert.NotNil(t, err)
}
