/*
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package device

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/platform"
	"github.com/rcornwell/devcoord/wire"
)

// Tree owns the coordinator's two permanent roots, root and misc, and the
// mutation operations on everything reachable from them. ReleaseHost lets
// the host manager (outside this package) tear down a Host's process and
// channel when its last referencing device releases it; Publisher is the
// devfs side-effect for every add/remove.
type Tree struct {
	Root *Device
	Misc *Device

	Publisher   Publisher
	ReleaseHost func(*Host)
}

// MiscParentProtocol is the well-known protocol id that marks a driver's
// bind program as targeting the misc parent rather than a concrete bus.
const MiscParentProtocol uint32 = 0

// NewTree builds the two immortal roots. Neither is ever added through
// Add: they exist before any device host does, and misc is published as a
// child of root purely as a devfs convenience, not a tree parent/child
// relationship (dump below reflects this).
func NewTree(pub Publisher, releaseHost func(*Host)) *Tree {
	root := &Device{Name: "root", Flags: FlagImmortal | FlagBusDev | FlagMultiBind, RefCount: 1}
	misc := &Device{Name: "misc", Flags: FlagImmortal | FlagBusDev | FlagMultiBind, ProtocolID: MiscParentProtocol, RefCount: 1}
	return &Tree{Root: root, Misc: misc, Publisher: pub, ReleaseHost: releaseHost}
}

// AddRequest carries the fields of an ADD_DEVICE request, already split
// out of the wire frame but not yet validated.
type AddRequest struct {
	Name       string
	ProtocolID uint32
	PropsData  []byte
	Args       string
}

// Add creates a new device as a child of parent (or of parent.Parent, if
// parent is itself a shadow: children of a proxy publish under the real
// device it shadows). handles[0] becomes the device's RPC channel;
// handles[1], if present, becomes its resource handle. arm registers the
// new channel with the event port; enqueue schedules its DEVICE_ADDED work
// item. Both are supplied by the caller to keep this package free of any
// dependency on the event port or work queue.
func (t *Tree) Add(parent *Device, req AddRequest, handles []platform.Handle, arm func(*Device) error, enqueue func(*Device) error) (*Device, error) {
	if len(handles) == 0 {
		return nil, dcstatus.ErrInvalidArgs
	}
	if len(req.Name) > wire.MaxNameLen {
		return nil, dcstatus.ErrInvalidArgs
	}
	if len(req.PropsData)%wire.PropSize != 0 {
		return nil, dcstatus.ErrInvalidArgs
	}
	ch, ok := handles[0].(platform.Channel)
	if !ok {
		return nil, dcstatus.ErrInvalidArgs
	}

	dev := &Device{
		Name:       req.Name,
		ProtocolID: req.ProtocolID,
		Props:      decodeProps(req.PropsData),
		Args:       req.Args,
		Channel:    ch,
	}
	if len(handles) > 1 {
		dev.Resource = handles[1]
	}
	// A bus device arg string or resource handle makes this a bus
	// device by definition, whether or not the caller also said so.
	if req.Args != "" || dev.Resource != nil {
		dev.Flags |= FlagBusDev
	}

	target := parent
	if parent.Flags&FlagShadow != 0 {
		target = parent.Parent
	}

	if err := t.Publisher.Publish(target, dev); err != nil {
		return nil, err
	}
	if err := arm(dev); err != nil {
		t.Publisher.Unpublish(dev)
		return nil, err
	}

	if parent.Host != nil {
		AttachHost(dev, parent.Host)
	}
	dev.RefCount = 1
	dev.Parent = target
	target.Children = append(target.Children, dev)
	target.RefCount++

	if err := enqueue(dev); err != nil {
		return nil, err
	}
	return dev, nil
}

// Remove begins teardown of dev: it is marked dead, unpublished, its host
// reference released, and it is unlinked from its parent (or, for a
// shadow, from the device it shadows). The parent is then released once
// for the child it just lost. Removing an immortal or already-dead device
// is a bad-state error.
func (t *Tree) Remove(dev *Device) error {
	if dev.Flags&FlagDead != 0 {
		return dcstatus.ErrBadState
	}
	if dev.Flags&FlagImmortal != 0 {
		return dcstatus.ErrBadState
	}
	dev.Flags |= FlagDead
	t.Publisher.Unpublish(dev)

	if dev.Host != nil {
		if t.ReleaseHost != nil {
			t.ReleaseHost(dev.Host)
		}
		dev.Host = nil
	}

	parent := dev.Parent
	if parent != nil {
		if dev.Flags&FlagShadow != 0 {
			parent.Shadow = nil
		} else {
			removeChild(parent, dev)
		}
		dev.Parent = nil
		t.Release(parent)
	}
	return nil
}

// Release drops one reference to dev. Once no references remain (and
// barring immortality) it is fully torn down: unpublished, its
// channel and resource handle closed, its host reference cleared.
func (t *Tree) Release(dev *Device) {
	dev.RefCount--
	if dev.RefCount > 0 {
		return
	}
	if dev.Flags&FlagImmortal != 0 {
		return
	}
	t.Publisher.Unpublish(dev)
	if dev.Channel != nil {
		dev.Channel.Close()
		dev.Channel = nil
	}
	if dev.Resource != nil {
		dev.Resource.Close()
		dev.Resource = nil
	}
	dev.Host = nil
}

// EnsureShadow returns parent's shadow device, creating it if this is the
// first attempt to bind a driver into a device host on parent's behalf.
func (t *Tree) EnsureShadow(parent *Device) *Device {
	if parent.Shadow != nil {
		return parent.Shadow
	}
	shadow := &Device{
		Name:       parent.Name,
		ProtocolID: parent.ProtocolID,
		Flags:      FlagShadow,
		Parent:     parent,
	}
	parent.Shadow = shadow
	parent.RefCount++
	return shadow
}

func removeChild(parent *Device, dev *Device) {
	for i, c := range parent.Children {
		if c == dev {
			parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
			return
		}
	}
}

func decodeProps(data []byte) []Prop {
	n := len(data) / wire.PropSize
	if n == 0 {
		return nil
	}
	props := make([]Prop, n)
	for i := 0; i < n; i++ {
		off := i * wire.PropSize
		props[i] = Prop{
			ID:       binary.LittleEndian.Uint32(data[off : off+4]),
			Reserved: binary.LittleEndian.Uint32(data[off+4 : off+8]),
			Value:    binary.LittleEndian.Uint32(data[off+8 : off+12]),
		}
	}
	return props
}

// Dump writes the device tree to w: root's subtree in pre-order, followed
// by misc's subtree, matching the upstream coordinator's boot-time dump
// exactly (misc is dumped separately, not as one of root's children).
func (t *Tree) Dump(w io.Writer) {
	dumpDevice(w, t.Root, 0)
	dumpDevice(w, t.Misc, 1)
}

func dumpDevice(w io.Writer, d *Device, indent int) {
	prefix := strings.Repeat("   ", indent)
	var pid uint64
	if d.Host != nil {
		pid = d.Host.Koid
	}
	if pid == 0 {
		fmt.Fprintf(w, "%s[%s]\n", prefix, d.Name)
	} else {
		var busdev, shadow string
		if d.Flags&FlagBusDev != 0 {
			busdev = " busdev"
		}
		if d.Flags&FlagShadow != 0 {
			shadow = " shadow"
		}
		fmt.Fprintf(w, "%s[%s] pid=%d%s%s\n", prefix, d.Name, pid, busdev, shadow)
	}
	// A shadow bumps indent for the rest of this call, including the
	// children loop below: this mirrors the upstream dumper's literal
	// behavior rather than a cleaner independent indent per branch.
	if d.Shadow != nil {
		indent++
		dumpDevice(w, d.Shadow, indent)
	}
	for _, c := range d.Children {
		dumpDevice(w, c, indent+1)
	}
}
