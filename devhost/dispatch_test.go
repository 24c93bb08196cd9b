package devhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcornwell/devcoord/device"
	"github.com/rcornwell/devcoord/platform"
	"github.com/rcornwell/devcoord/rpc"
)

// CreateDevice must forward the real bus device's Args through its shadow:
// a shadow's own Args is always empty, since EnsureShadow never populates
// it.
func TestCreateDeviceForwardsParentArgsThroughShadow(t *testing.T) {
	hostLocal, hostRemote := platform.NewChannelPair()
	defer hostLocal.Close()
	defer hostRemote.Close()

	parent := &device.Device{Name: "pci0", Args: "sys/pci/00:00"}
	shadow := &device.Device{Name: "pci0", Flags: device.FlagShadow, Parent: parent}
	host := &device.Host{Name: "devhost:pci", Channel: hostLocal}

	d := &Dispatcher{
		Platform: platform.NewInMemory(),
		Arm:      func(*device.Device) error { return nil },
	}
	require.NoError(t, d.CreateDevice(shadow, host, "driver/pci.so"))

	frame, ok := hostRemote.Recv()
	require.True(t, ok)
	msg, err := rpc.Unpack(frame.Data)
	require.NoError(t, err)
	assert.Equal(t, rpc.OpCreateDevice, msg.Op)
	assert.Equal(t, parent.Args, msg.Args)
	assert.Empty(t, shadow.Args)
}
