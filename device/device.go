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

// Package device holds the coordinator's device tree: the Device and
// DeviceHost entities, their ownership and lifecycle rules, and the tree
// mutation operations (add, remove, release, dump) that everything else in
// the coordinator builds on.
package device

import "github.com/rcornwell/devcoord/platform"

// Flag is a bitmask of device state and classification bits.
type Flag uint16

const (
	// FlagImmortal marks a device that is never released: root and misc.
	FlagImmortal Flag = 1 << iota
	// FlagBusDev marks a device that hosts children in its own device host.
	FlagBusDev
	// FlagMultiBind allows more than one successful bind over the
	// device's lifetime.
	FlagMultiBind
	// FlagShadow marks a proxy device instantiated inside a device host
	// on behalf of a bus device living in the coordinator's tree.
	FlagShadow
	// FlagBound marks a device with an outstanding or completed
	// BIND_DRIVER request.
	FlagBound
	// FlagDead marks a device that has begun teardown; it may still be
	// reachable via stale pointers until its refcount reaches zero.
	FlagDead
)

// Prop is one property triple attached to a device at ADD_DEVICE time: an
// application-defined id, a reserved word, and a value compared against
// bind program instructions.
type Prop struct {
	ID       uint32
	Reserved uint32
	Value    uint32
}

// PendingOp names the kind of reply a device's Pending stack is waiting
// for, so an incoming STATUS message can be decoded without a separate
// side channel.
type PendingOp int

const (
	PendingBind PendingOp = iota + 1
)

// Pending is one outstanding coordinator-initiated request a device is
// waiting on a STATUS reply for.
type Pending struct {
	Op PendingOp
}

// Host is the non-owning handle to a device-host process. It is shared by
// every device it hosts; RefCount tracks how many devices currently
// reference it, and it is torn down (channel closed, process killed) only
// when that count reaches zero.
type Host struct {
	Name     string
	Channel  platform.Channel
	Process  platform.Process
	Koid     uint64
	RefCount int
}

// AttachHost points dev at h and records the reference. Every assignment
// to Device.Host must go through here so RefCount stays in sync with the
// number of devices actually pointing at the host.
func AttachHost(dev *Device, h *Host) {
	dev.Host = h
	h.RefCount++
}

// Device is one node in the coordinator's device tree.
type Device struct {
	Name       string
	ProtocolID uint32
	Props      []Prop
	Args       string
	Flags      Flag

	Parent   *Device
	Children []*Device
	Shadow   *Device

	Host     *Host
	Channel  platform.Channel
	Resource platform.Handle
	FSNode   any

	Pending  []Pending
	RefCount int

	queued bool
	workOp int
}

// Queued reports whether dev currently occupies a slot in the work queue.
func (d *Device) Queued() bool { return d.queued }

// SetQueued records dev's single work-queue slot state. op is stored as the
// slot's work operation in both cases; the work queue passes its idle op
// when it clears the slot.
func (d *Device) SetQueued(queued bool, op int) {
	d.queued = queued
	d.workOp = op
}

// WorkOp returns the operation last passed to SetQueued.
func (d *Device) WorkOp() int { return d.workOp }

// Publisher is the devfs-facing side of the tree: the external interface
// that turns a parent/child device pair into a visible filesystem node.
// Unpublish must be safe to call on a device that was never published or
// was already unpublished.
type Publisher interface {
	Publish(parent, dev *Device) error
	Unpublish(dev *Device)
}
