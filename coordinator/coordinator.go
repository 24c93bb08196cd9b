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

// Package coordinator wires the device tree, driver registry, host
// manager, event port and work queue into the single-threaded device
// coordinator loop, and implements the bind orchestration (shadow
// instantiation, newly-added-device scan, administrative bind) that spans
// all of them.
package coordinator

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/devcoord/config"
	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/devfs"
	"github.com/rcornwell/devcoord/devhost"
	"github.com/rcornwell/devcoord/device"
	"github.com/rcornwell/devcoord/dmctl"
	"github.com/rcornwell/devcoord/driver"
	"github.com/rcornwell/devcoord/driverfs"
	"github.com/rcornwell/devcoord/eventport"
	"github.com/rcornwell/devcoord/platform"
	"github.com/rcornwell/devcoord/workqueue"
)

// idlePoll bounds how long the main loop blocks in a single Dispatch call
// while the work queue is empty, so it stays responsive to Stop and
// console commands without busy-looping.
const idlePoll = 50 * time.Millisecond

// Coordinator is the top-level device coordinator: one device tree, one
// driver registry, one host manager, one event port, one work queue, all
// driven from a single goroutine.
type Coordinator struct {
	cfg        config.Config
	platform   platform.Platform
	tree       *device.Tree
	registry   *driver.Registry
	hosts      *devhost.Manager
	dispatcher *devhost.Dispatcher
	port       *eventport.Port
	work       *workqueue.Queue
	dmctl      *dmctl.Handler

	wg       sync.WaitGroup
	done     chan struct{}
	commands chan string
}

// New builds a Coordinator and wires every component together. It does
// not yet run the boot sequence; call Bootstrap for that.
func New(cfg config.Config, p platform.Platform) *Coordinator {
	fs := devfs.New()
	hosts := devhost.NewManager(p, cfg.DevhostBinary)
	tree := device.NewTree(fs, hosts.Release)

	c := &Coordinator{
		cfg:      cfg,
		platform: p,
		tree:     tree,
		hosts:    hosts,
		port:     eventport.NewPort(),
		work:     &workqueue.Queue{},
		done:     make(chan struct{}),
		commands: make(chan string, 16),
	}
	c.dmctl = &dmctl.Handler{Platform: p, Tree: tree}
	c.registry = driver.NewRegistry(c.bindRootDriver, c.bindMiscDriver)
	c.dispatcher = &devhost.Dispatcher{
		Platform:     p,
		Tree:         tree,
		Arm:          c.arm,
		Enqueue:      c.enqueue,
		OnBindDevice: c.bindDeviceAdmin,
		OnDMCommand:  c.dmctl.Handle,
	}
	return c
}

// Bootstrap runs the coordinator's boot sequence: best-effort ACPI
// bring-up, publishing misc under root, binding the two synthetic
// bootstrap drivers (root.so to root, dmctl.so to misc), and finally
// walking the driver manifest directory.
func (c *Coordinator) Bootstrap() {
	if err := c.platform.InitACPI(); err != nil {
		slog.Error("devcoord: acpi bootstrap failed", "err", err)
	}
	if err := c.tree.Publisher.Publish(c.tree.Root, c.tree.Misc); err != nil {
		slog.Error("devcoord: publish misc failed", "err", err)
	}

	rootDrv := &driver.Driver{Name: "root", LibName: "driver/root.so"}
	if err := c.AttemptBind(rootDrv, c.tree.Root); err != nil {
		slog.Error("devcoord: bind root.so failed", "err", err)
	}
	miscDrv := &driver.Driver{Name: "dmctl", LibName: "driver/dmctl.so"}
	if err := c.AttemptBind(miscDrv, c.tree.Misc); err != nil {
		slog.Error("devcoord: bind dmctl.so failed", "err", err)
	}

	if err := driverfs.Enumerate(c.cfg.DriverDir, c.registry); err != nil {
		slog.Error("devcoord: enumerate drivers failed", "err", err)
	}
}

// Commands returns the channel Start reads administrative commands from;
// a dmctl console feeds it.
func (c *Coordinator) Commands() chan<- string { return c.commands }

// Start runs the coordinator's main loop on a new goroutine.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
}

// Stop signals the main loop to exit and waits up to a second for it.
func (c *Coordinator) Stop() {
	close(c.done)
	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		slog.Warn("devcoord: timed out waiting for coordinator to stop")
	}
}

func (c *Coordinator) run() {
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.commands:
			if err := c.dmctl.Handle(cmd); err != nil {
				slog.Error("devcoord: dmctl command failed", "cmd", cmd, "err", err)
			}
			continue
		default:
		}

		var err error
		if c.work.Empty() {
			err = c.port.Dispatch(idlePoll)
		} else {
			err = c.port.Dispatch(0)
			if errors.Is(err, eventport.ErrTimedOut) {
				if item, ok := c.work.Pop(); ok {
					c.processWork(item)
				}
				continue
			}
		}
		if err != nil && !errors.Is(err, eventport.ErrTimedOut) {
			slog.Error("devcoord: port dispatch ended", "err", err)
		}
	}
}

func (c *Coordinator) arm(dev *device.Device) error {
	return c.port.Watch(&deviceHandler{dev: dev, coord: c})
}

func (c *Coordinator) enqueue(dev *device.Device) error {
	return c.work.Enqueue(dev, workqueue.DeviceAdded)
}

func (c *Coordinator) processWork(item workqueue.Item) {
	switch item.Op {
	case workqueue.DeviceAdded:
		c.handleNewDevice(item.Dev)
	default:
		slog.Error("devcoord: unknown work item", "op", item.Op)
	}
}

// bindRootDriver and bindMiscDriver are the driver registry's hooks for
// immediate-bind-on-registration: the pci driver binds root the instant
// it's registered, and the structurally-recognized misc driver binds misc,
// both bypassing the generic newly-added-device scan.
func (c *Coordinator) bindRootDriver(drv *driver.Driver) error {
	return c.AttemptBind(drv, c.tree.Root)
}

func (c *Coordinator) bindMiscDriver(drv *driver.Driver) error {
	return c.AttemptBind(drv, c.tree.Misc)
}

func (c *Coordinator) handleNewDevice(dev *device.Device) {
	for _, drv := range c.registry.All() {
		if !c.registry.IsBindable(drv, dev.ProtocolID, dev.Props, true) {
			continue
		}
		slog.Info("devcoord: driver bindable", "driver", drv.Name, "device", dev.Name)
		if err := c.AttemptBind(drv, dev); err != nil {
			slog.Error("devcoord: attempt bind failed", "driver", drv.Name, "device", dev.Name, "err", err)
		}
		// First match wins; later drivers aren't tried even on failure.
		break
	}
}

// bindDeviceAdmin is reached from a host-initiated BIND_DEVICE RPC: an
// administrative request to bind dev to the driver named drvname. A
// mismatch (wrong protocol/props, or no such driver) completes silently
// with no error: this is a request, not an assertion that the driver must
// apply.
func (c *Coordinator) bindDeviceAdmin(dev *device.Device, drvname string) error {
	if dev.Flags&device.FlagShadow != 0 {
		return dcstatus.ErrNotSupported
	}
	libname := "driver/" + drvname + ".so"
	for _, drv := range c.registry.All() {
		if drv.LibName != libname {
			continue
		}
		if !c.registry.IsBindable(drv, dev.ProtocolID, dev.Props, false) {
			break
		}
		slog.Info("devcoord: administrative bind", "driver", drv.Name, "device", dev.Name)
		return c.AttemptBind(drv, dev)
	}
	return nil
}

// AttemptBind tries to bind drv to dev, per the refusal matrix: a device
// already bound (without MULTI_BIND) refuses outright; a non-bus device
// with no host can't host a driver at all; a bus device gets (or reuses) a
// shadow in the right device host before the driver is bound to it.
func (c *Coordinator) AttemptBind(drv *driver.Driver, dev *device.Device) error {
	if dev.Flags&device.FlagBound != 0 && dev.Flags&device.FlagMultiBind == 0 {
		return dcstatus.ErrBadState
	}

	if dev.Flags&device.FlagBusDev == 0 {
		if dev.Host == nil {
			slog.Error("devcoord: device has no host to bind into", "device", dev.Name)
			return dcstatus.ErrBadState
		}
		return c.dispatcher.BindDriver(dev, drv.LibName)
	}

	hostname, ok := c.busHostName(dev)
	if !ok {
		return dcstatus.ErrNotSupported
	}

	shadow := c.tree.EnsureShadow(dev)
	if shadow.Host == nil {
		host, err := c.hosts.NewHost(hostname)
		if err != nil {
			return err
		}
		device.AttachHost(shadow, host)
		if err := c.dispatcher.CreateDevice(shadow, host, drv.LibName); err != nil {
			return err
		}
	}
	return c.dispatcher.BindDriver(shadow, drv.LibName)
}

// busHostName resolves which device host a bus device's shadow belongs in,
// per the configured protocol -> devhost-name table, falling back to
// devhost:root for the coordinator's own root device.
func (c *Coordinator) busHostName(dev *device.Device) (string, bool) {
	// Root is checked first: its ProtocolID is zero, the same value as
	// MiscParentProtocol.
	if dev == c.tree.Root {
		return c.cfg.BusHosts["ROOT"], true
	}
	switch dev.ProtocolID {
	case protocolPCI:
		return c.cfg.BusHosts["PCI"], true
	case device.MiscParentProtocol:
		return c.cfg.BusHosts["MISC_PARENT"], true
	default:
		return "", false
	}
}

// protocolPCI is the well-known protocol id published by the pci bus
// driver's devices.
const protocolPCI uint32 = 1

// deviceHandler adapts one device's channel to the event port's Handler
// interface: readable signals are handed to the RPC dispatcher, and an
// unexpected disconnect removes the device from the tree.
type deviceHandler struct {
	dev   *device.Device
	coord *Coordinator
}

func (h *deviceHandler) Channel() platform.Channel { return h.dev.Channel }

func (h *deviceHandler) Handle(signals eventport.Signal) error {
	if signals&eventport.Readable != 0 {
		err := h.coord.dispatcher.HandleDeviceReadable(h.dev)
		if err != nil && !errors.Is(err, dcstatus.ErrStop) {
			slog.Error("devcoord: device rpc error", "name", h.dev.Name, "err", err)
		}
		return err
	}
	if signals&eventport.PeerClosed != 0 {
		slog.Error("devcoord: device disconnected", "name", h.dev.Name)
		if err := h.coord.tree.Remove(h.dev); err != nil {
			slog.Error("devcoord: remove on disconnect failed", "name", h.dev.Name, "err", err)
		}
		return dcstatus.ErrPeerClosed
	}
	return nil
}
