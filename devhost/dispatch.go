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

package devhost

import (
	"log/slog"

	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/device"
	"github.com/rcornwell/devcoord/platform"
	"github.com/rcornwell/devcoord/rpc"
)

// Dispatcher decodes and acts on everything a device host sends over its
// RPC channel: requests from the host (ADD_DEVICE, REMOVE_DEVICE,
// BIND_DEVICE, REBIND_DEVICE, DM_COMMAND) and status replies to requests
// the coordinator itself initiated (CREATE_DEVICE, BIND_DRIVER).
type Dispatcher struct {
	Platform platform.Platform
	Tree     *device.Tree

	// Arm registers a newly created device's channel with the event
	// port; Enqueue schedules its DEVICE_ADDED work item. Both are
	// supplied by the coordinator to keep this package free of any
	// dependency on the event port or work queue.
	Arm     func(*device.Device) error
	Enqueue func(*device.Device) error

	// OnBindDevice handles a host-initiated BIND_DEVICE (administrative
	// bind by driver name); OnDMCommand handles a DM_COMMAND payload.
	// Both are supplied by the coordinator, which is the only component
	// that knows about the driver registry and the dmctl handler.
	OnBindDevice func(dev *device.Device, drvname string) error
	OnDMCommand  func(args string) error
}

// HandleDeviceReadable processes exactly one pending frame on dev's
// channel. It is called by the event port's device handler when Readable
// is signaled.
func (d *Dispatcher) HandleDeviceReadable(dev *device.Device) error {
	frame, ok := dev.Channel.Recv()
	if !ok {
		return nil
	}

	if rpc.IsStatus(len(frame.Data)) {
		return d.handleStatus(dev, frame)
	}

	msg, err := rpc.Unpack(frame.Data)
	if err != nil {
		for _, h := range frame.Handles {
			h.Close()
		}
		return d.reply(dev, 0, err)
	}
	// Only ADD_DEVICE may carry handles; anything else closes whatever
	// arrived with it rather than leaking it.
	if msg.Op != rpc.OpAddDevice {
		for _, h := range frame.Handles {
			h.Close()
		}
	}

	switch msg.Op {
	case rpc.OpAddDevice:
		_, err := d.Tree.Add(dev, device.AddRequest{
			Name:       msg.Name,
			ProtocolID: msg.ProtocolID,
			PropsData:  msg.Data,
			Args:       msg.Args,
		}, frame.Handles, d.Arm, d.Enqueue)
		if err != nil {
			for _, h := range frame.Handles {
				h.Close()
			}
		}
		return d.reply(dev, msg.Txid, err)

	case rpc.OpRemoveDevice:
		err := d.Tree.Remove(dev)
		if err != nil {
			slog.Error("devcoord: remove device failed", "name", dev.Name, "err", err)
		}
		if rerr := d.reply(dev, msg.Txid, nil); rerr != nil {
			return rerr
		}
		return dcstatus.ErrStop

	case rpc.OpBindDevice:
		err := d.OnBindDevice(dev, msg.Args)
		return d.reply(dev, msg.Txid, err)

	case rpc.OpRebindDevice:
		return d.reply(dev, msg.Txid, dcstatus.ErrNotSupported)

	case rpc.OpDMCommand:
		err := d.OnDMCommand(string(msg.Data))
		return d.reply(dev, msg.Txid, err)

	default:
		slog.Error("devcoord: unknown rpc op", "name", dev.Name, "op", msg.Op)
		return d.reply(dev, msg.Txid, dcstatus.ErrNotSupported)
	}
}

// handleStatus decodes a STATUS reply to a prior coordinator-initiated
// request and pops the matching pending entry, LIFO.
func (d *Dispatcher) handleStatus(dev *device.Device, frame platform.Frame) error {
	_, status, err := rpc.UnpackStatus(frame.Data)
	if err != nil {
		return nil
	}
	if len(dev.Pending) == 0 {
		slog.Error("devcoord: spurious status reply", "name", dev.Name)
		return nil
	}
	last := len(dev.Pending) - 1
	pending := dev.Pending[last]
	dev.Pending = dev.Pending[:last]

	if status != 0 {
		slog.Error("devcoord: coordinator-initiated op failed", "name", dev.Name, "op", pending.Op, "status", status)
	}
	return nil
}

// reply sends a status reply for a host-initiated request. Any error
// argument is the logical outcome of handling the request and is folded
// into the wire status; only a failure actually writing to the channel is
// returned to the caller (which then disarms the device).
func (d *Dispatcher) reply(dev *device.Device, txid uint32, err error) error {
	buf := rpc.PackStatus(txid, dcstatus.WireStatus(err))
	return dev.Channel.Send(platform.Frame{Data: buf})
}

// CreateDevice instantiates shadow inside host: it opens a fresh channel
// pair, sends CREATE_DEVICE carrying the remote end (and a duplicated
// resource handle, if shadow's underlying device had one) to the host, and
// arms the local end on the event port.
func (d *Dispatcher) CreateDevice(shadow *device.Device, host *device.Host, libname string) error {
	local, remote, err := d.Platform.CreateChannel()
	if err != nil {
		return err
	}
	// args and the resource handle travel from the real bus device, not
	// the shadow: a shadow's own Args and Resource are always empty, since
	// EnsureShadow never populates them.
	info := shadow
	if shadow.Flags&device.FlagShadow != 0 {
		info = shadow.Parent
	}
	handles := []platform.Handle{remote}
	if info.Resource != nil {
		dup, err := d.Platform.DuplicateResource(info.Resource)
		if err != nil {
			local.Close()
			remote.Close()
			return err
		}
		handles = append(handles, dup)
	}

	msg := rpc.Message{Op: rpc.OpCreateDevice, ProtocolID: shadow.ProtocolID, Name: libname, Args: info.Args}
	buf, err := rpc.Pack(msg)
	if err != nil {
		local.Close()
		for _, h := range handles {
			h.Close()
		}
		return err
	}
	if err := host.Channel.Send(platform.Frame{Data: buf, Handles: handles}); err != nil {
		local.Close()
		for _, h := range handles {
			h.Close()
		}
		return err
	}

	shadow.Channel = local
	return d.Arm(shadow)
}

// BindDriver sends BIND_DRIVER for libname on dev's channel and marks dev
// bound, pushing a pending entry so the eventual STATUS reply can be
// correlated.
func (d *Dispatcher) BindDriver(dev *device.Device, libname string) error {
	msg := rpc.Message{Op: rpc.OpBindDriver, Name: libname}
	buf, err := rpc.Pack(msg)
	if err != nil {
		return err
	}
	if err := dev.Channel.Send(platform.Frame{Data: buf}); err != nil {
		return err
	}
	dev.Flags |= device.FlagBound
	dev.Pending = append(dev.Pending, device.Pending{Op: device.PendingBind})
	return nil
}
