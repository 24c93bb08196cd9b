package coordinator

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcornwell/devcoord/config"
	"github.com/rcornwell/devcoord/device"
	"github.com/rcornwell/devcoord/driver"
	"github.com/rcornwell/devcoord/platform"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.DriverDir = filepath.Join(t.TempDir(), "no-such-dir")
	return cfg
}

// Scenario: boot with no drivers registered produces the bare root/misc
// dump.
func TestBootWithNoDriversDumpsBareTree(t *testing.T) {
	c := New(testConfig(t), platform.NewInMemory())
	c.Bootstrap()

	var buf bytes.Buffer
	c.tree.Dump(&buf)
	assert.Equal(t, "[root]\n   [misc]\n", buf.String())
}

// Scenario: after the pci driver is registered, root has a shadow with a
// host and an armed channel, and root's refcount counts that shadow once.
// Bootstrap's root.so bind has already created the shadow and its host, so
// the pci registration binds into that existing shadow.
func TestPCIDriverRegistrationUsesRootShadowAndHost(t *testing.T) {
	c := New(testConfig(t), platform.NewInMemory())
	c.Bootstrap()

	pciDrv := &driver.Driver{
		Name:    "pci",
		LibName: "driver/pci.so",
		Binding: driver.Binding{{Field: driver.FieldProtocol, Cond: driver.CondEQ, Value: protocolPCI}},
	}
	require.NoError(t, c.registry.Register(pciDrv))

	shadow := c.tree.Root.Shadow
	require.NotNil(t, shadow)
	require.NotNil(t, shadow.Host)
	require.NotNil(t, shadow.Host.Channel)
	assert.Equal(t, 2, c.tree.Root.RefCount) // immortal base 1, +1 for the shadow
}

// Scenario: a newly added device is auto-bound to the first matching
// driver in registration order.
func TestAddDeviceAutobindsFirstMatchingDriver(t *testing.T) {
	c := New(testConfig(t), platform.NewInMemory())
	c.Bootstrap()

	matching := &driver.Driver{
		Name:    "widget",
		LibName: "driver/widget.so",
		Binding: driver.Binding{{Field: driver.FieldProtocol, Cond: driver.CondEQ, Value: 42}},
	}
	require.NoError(t, c.registry.Register(matching))

	// A device added inside a device host's tree (the parent already has
	// a Host, as it would for anything reported by a running devhost).
	host := &device.Host{Name: "devhost:test"}
	shadow := c.tree.EnsureShadow(c.tree.Root)
	device.AttachHost(shadow, host)

	local, _ := platform.NewChannelPair()
	dev, err := c.tree.Add(shadow, device.AddRequest{Name: "widget0", ProtocolID: 42}, []platform.Handle{local}, c.arm, c.enqueue)
	require.NoError(t, err)

	item, ok := c.work.Pop()
	require.True(t, ok)
	c.processWork(item)

	assert.NotZero(t, dev.Flags&device.FlagBound)
}

// Scenario: an administrative bind naming a driver whose bind program
// doesn't actually match the device completes silently with no error.
func TestAdministrativeBindMismatchIsSilent(t *testing.T) {
	c := New(testConfig(t), platform.NewInMemory())
	c.Bootstrap()

	other := &driver.Driver{
		Name:    "other",
		LibName: "driver/other.so",
		Binding: driver.Binding{{Field: driver.FieldProtocol, Cond: driver.CondEQ, Value: 99}},
	}
	require.NoError(t, c.registry.Register(other))

	local, _ := platform.NewChannelPair()
	dev, err := c.tree.Add(c.tree.Root, device.AddRequest{Name: "dev0", ProtocolID: 7}, []platform.Handle{local}, c.arm, c.enqueue)
	require.NoError(t, err)
	c.work.Pop() // drain the auto-bind work item without processing it

	err = c.bindDeviceAdmin(dev, "other")
	assert.NoError(t, err)
	assert.Zero(t, dev.Flags&device.FlagBound)
}

// Scenario: a device's host disconnecting unarms it, removes it from the
// tree, and releases its host reference.
func TestDeviceDisconnectRemovesDeviceAndReleasesHost(t *testing.T) {
	c := New(testConfig(t), platform.NewInMemory())
	c.Bootstrap()

	host, err := c.hosts.NewHost("devhost:test")
	require.NoError(t, err)

	local, remote := platform.NewChannelPair()
	dev, err := c.tree.Add(c.tree.Root, device.AddRequest{Name: "dev0"}, []platform.Handle{local}, c.arm, c.enqueue)
	require.NoError(t, err)
	device.AttachHost(dev, host)
	c.work.Pop()

	require.NoError(t, remote.Close())

	err = c.port.Dispatch(0)
	assert.Error(t, err)
	assert.NotZero(t, dev.Flags&device.FlagDead)
	assert.Zero(t, host.RefCount)
	assert.Nil(t, host.Channel)
}

// Scenario: an unrecognized dmctl command is reported as NOT_SUPPORTED.
func TestDmctlUnknownCommandNotSupported(t *testing.T) {
	c := New(testConfig(t), platform.NewInMemory())
	c.Bootstrap()

	err := c.dmctl.Handle("no-such-command")
	assert.Error(t, err)
}
