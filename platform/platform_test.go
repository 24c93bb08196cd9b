package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelPairSendRecv(t *testing.T) {
	a, b := NewChannelPair()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Send(Frame{Data: []byte("hello")}))
	assert.True(t, b.HasData())

	f, ok := b.Recv()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), f.Data)
	assert.False(t, b.HasData())
}

func TestChannelRecvEmpty(t *testing.T) {
	a, b := NewChannelPair()
	defer a.Close()
	defer b.Close()

	_, ok := a.Recv()
	assert.False(t, ok)
}

func TestChannelCloseSignalsPeer(t *testing.T) {
	a, b := NewChannelPair()
	defer b.Close()

	require.NoError(t, a.Close())
	assert.True(t, b.PeerClosed())
	assert.True(t, a.Closed())
}

func TestSendAfterPeerCloseFails(t *testing.T) {
	a, b := NewChannelPair()
	defer a.Close()

	require.NoError(t, b.Close())
	assert.Error(t, a.Send(Frame{Data: []byte("x")}))
}

func TestPeerClosedFalseWhileDataPending(t *testing.T) {
	a, b := NewChannelPair()
	defer b.Close()

	require.NoError(t, a.Send(Frame{Data: []byte("x")}))
	require.NoError(t, a.Close())
	// Data arrived before the close: the reader must drain it before
	// PeerClosed reports true.
	assert.False(t, b.PeerClosed())
	_, ok := b.Recv()
	require.True(t, ok)
	assert.True(t, b.PeerClosed())
}

func TestInMemorySpawnHost(t *testing.T) {
	p := NewInMemory()
	local, remote, err := p.CreateChannel()
	require.NoError(t, err)
	defer local.Close()
	defer remote.Close()

	resource, err := p.DuplicateResource(p.RootResource())
	require.NoError(t, err)

	proc, err := p.SpawnHost("devhost:test", remote, resource)
	require.NoError(t, err)
	assert.NotZero(t, proc.Koid())
	assert.NoError(t, proc.Kill())
}

func TestInMemoryAdminCallsNoError(t *testing.T) {
	p := NewInMemory()
	assert.NoError(t, p.InitACPI())
	assert.NoError(t, p.Reboot())
	assert.NoError(t, p.PowerOff())
	assert.NoError(t, p.KTraceStart())
	assert.NoError(t, p.KTraceStop())
	assert.NoError(t, p.ACPIPS0("\\_SB.PCI0"))
	assert.NoError(t, p.KernelDebug("kill 1"))
	assert.NoError(t, p.LaunchApp("@app"))
}
