package device

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/platform"
)

type fakePublisher struct {
	published map[*Device]bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: map[*Device]bool{}}
}

func (f *fakePublisher) Publish(parent, dev *Device) error {
	f.published[dev] = true
	return nil
}

func (f *fakePublisher) Unpublish(dev *Device) {
	delete(f.published, dev)
}

func noopArm(*Device) error     { return nil }
func noopEnqueue(*Device) error { return nil }

func TestNewTreeBootDump(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	var buf bytes.Buffer
	tree.Dump(&buf)
	assert.Equal(t, "[root]\n   [misc]\n", buf.String())
}

func TestAddRequiresHandle(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	_, err := tree.Add(tree.Root, AddRequest{Name: "pci"}, nil, noopArm, noopEnqueue)
	assert.ErrorIs(t, err, dcstatus.ErrInvalidArgs)
}

func TestAddNameTooLong(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	local, _ := platform.NewChannelPair()
	longName := make([]byte, 64)
	for i := range longName {
		longName[i] = 'a'
	}
	_, err := tree.Add(tree.Root, AddRequest{Name: string(longName)}, []platform.Handle{local}, noopArm, noopEnqueue)
	require.Error(t, err)
}

func TestAddLinksChildAndIncrementsRefcounts(t *testing.T) {
	pub := newFakePublisher()
	tree := NewTree(pub, nil)
	local, _ := platform.NewChannelPair()

	dev, err := tree.Add(tree.Root, AddRequest{Name: "pci", ProtocolID: 1}, []platform.Handle{local}, noopArm, noopEnqueue)
	require.NoError(t, err)

	assert.Equal(t, tree.Root, dev.Parent)
	assert.Contains(t, tree.Root.Children, dev)
	assert.Equal(t, 2, tree.Root.RefCount) // started at 1 (immortal), +1 for the child
	assert.Equal(t, 1, dev.RefCount)
	assert.True(t, pub.published[dev])
}

func TestAddUnderShadowRetargetsToRealParent(t *testing.T) {
	pub := newFakePublisher()
	tree := NewTree(pub, nil)
	shadow := tree.EnsureShadow(tree.Root)

	local, _ := platform.NewChannelPair()
	dev, err := tree.Add(shadow, AddRequest{Name: "child"}, []platform.Handle{local}, noopArm, noopEnqueue)
	require.NoError(t, err)

	assert.Equal(t, tree.Root, dev.Parent)
	assert.Contains(t, tree.Root.Children, dev)
}

func TestRemoveImmortalFails(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	err := tree.Remove(tree.Root)
	require.Error(t, err)
}

func TestRemoveTwiceFails(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	local, _ := platform.NewChannelPair()
	dev, err := tree.Add(tree.Root, AddRequest{Name: "x"}, []platform.Handle{local}, noopArm, noopEnqueue)
	require.NoError(t, err)

	require.NoError(t, tree.Remove(dev))
	assert.Error(t, tree.Remove(dev))
}

func TestRemoveReleasesHostReference(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	released := 0
	tree.ReleaseHost = func(h *Host) { released++ }

	host := &Host{Name: "devhost:pci"}
	local, _ := platform.NewChannelPair()
	dev, err := tree.Add(tree.Root, AddRequest{Name: "x"}, []platform.Handle{local}, noopArm, noopEnqueue)
	require.NoError(t, err)
	AttachHost(dev, host)

	require.NoError(t, tree.Remove(dev))
	assert.Equal(t, 1, released)
}

func TestEnsureShadowReusesExisting(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	s1 := tree.EnsureShadow(tree.Root)
	s2 := tree.EnsureShadow(tree.Root)
	assert.Same(t, s1, s2)
}

func TestPropsDecoding(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	local, _ := platform.NewChannelPair()
	data := make([]byte, 24) // two triples
	data[0] = 1              // id of first prop
	data[12] = 2             // id of second prop
	dev, err := tree.Add(tree.Root, AddRequest{Name: "x", PropsData: data}, []platform.Handle{local}, noopArm, noopEnqueue)
	require.NoError(t, err)
	require.Len(t, dev.Props, 2)
	assert.EqualValues(t, 1, dev.Props[0].ID)
	assert.EqualValues(t, 2, dev.Props[1].ID)
}

func TestPropsDataMisaligned(t *testing.T) {
	tree := NewTree(newFakePublisher(), nil)
	local, _ := platform.NewChannelPair()
	_, err := tree.Add(tree.Root, AddRequest{Name: "x", PropsData: make([]byte, 5)}, []platform.Handle{local}, noopArm, noopEnqueue)
	assert.Error(t, err)
}
