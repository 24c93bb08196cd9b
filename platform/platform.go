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

// Package platform is the narrow interface between the coordinator and the
// kernel primitives it depends on: channel transport, process spawn, and
// the handful of admin calls dmctl forwards (power, trace, ACPI, kernel
// debug). A production build backs Platform with real syscalls; InMemory
// backs it with goroutine-safe queues so the coordinator and its tests can
// run as an ordinary process with simulated device-host peers.
package platform

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rcornwell/devcoord/dcstatus"
)

// Frame is one message traveling across a Channel: a byte payload plus any
// handles being transferred with it.
type Frame struct {
	Data    []byte
	Handles []Handle
}

// Handle is anything a Frame can carry besides bytes: a Channel endpoint,
// a resource capability, or any other closable kernel object.
type Handle interface {
	Close() error
}

// Channel is a non-blocking, bidirectional message transport between the
// coordinator and a device-host peer. Every method must return promptly;
// nothing on this interface may block the caller waiting for a peer.
type Channel interface {
	Handle
	Send(f Frame) error
	Recv() (Frame, bool)
	HasData() bool
	PeerClosed() bool
	Closed() bool
}

// Process is a handle to a spawned device-host process.
type Process interface {
	Koid() uint64
	Kill() error
	Close() error
}

// Platform is the full set of kernel-level operations the coordinator
// needs: channel creation, host process spawn, resource duplication, and
// the narrow admin surface dmctl forwards.
type Platform interface {
	CreateChannel() (local, remote Channel, err error)
	SpawnHost(name string, rpc Channel, resource Handle) (Process, error)
	DuplicateResource(h Handle) (Handle, error)
	RootResource() Handle

	InitACPI() error
	Reboot() error
	PowerOff() error
	KTraceStart() error
	KTraceStop() error
	ACPIPS0(arg string) error
	KernelDebug(cmd string) error
	LaunchApp(text string) error
}

// pipeState is the shared, mutex-guarded backing store for one end of an
// in-process channel pair.
type pipeState struct {
	mu         sync.Mutex
	queue      []Frame
	closed     bool
	peerClosed bool
	peer       *pipeState
}

type pipeChannel struct{ s *pipeState }

// NewChannelPair returns two connected in-process Channel endpoints. Frames
// sent on one arrive, in order, on the other.
func NewChannelPair() (Channel, Channel) {
	a := &pipeState{}
	b := &pipeState{}
	a.peer = b
	b.peer = a
	return &pipeChannel{a}, &pipeChannel{b}
}

func (c *pipeChannel) Send(f Frame) error {
	c.s.mu.Lock()
	peer := c.s.peer
	self := c.s.closed
	c.s.mu.Unlock()
	if self {
		return dcstatus.ErrPeerClosed
	}

	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return dcstatus.ErrPeerClosed
	}
	peer.queue = append(peer.queue, f)
	return nil
}

func (c *pipeChannel) Recv() (Frame, bool) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if len(c.s.queue) == 0 {
		return Frame{}, false
	}
	f := c.s.queue[0]
	c.s.queue = c.s.queue[1:]
	return f, true
}

func (c *pipeChannel) HasData() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return len(c.s.queue) > 0
}

func (c *pipeChannel) PeerClosed() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.peerClosed && len(c.s.queue) == 0
}

func (c *pipeChannel) Closed() bool {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	return c.s.closed
}

func (c *pipeChannel) Close() error {
	c.s.mu.Lock()
	if c.s.closed {
		c.s.mu.Unlock()
		return nil
	}
	c.s.closed = true
	peer := c.s.peer
	c.s.mu.Unlock()

	peer.mu.Lock()
	peer.peerClosed = true
	peer.mu.Unlock()
	return nil
}

// resourceHandle is an opaque, closable capability token. It carries no
// behavior beyond identity; InMemory hands these out in place of real
// kernel resource handles.
type resourceHandle struct{ id uint64 }

func (r *resourceHandle) Close() error { return nil }

type process struct {
	koid uint64
	name string
}

func (p *process) Koid() uint64 { return p.koid }
func (p *process) Kill() error  { return nil }
func (p *process) Close() error { return nil }

// InMemory is the reference Platform: channel transport and spawn are real
// (goroutine-safe, in-process), while every admin call is a no-op (all but
// InitACPI log the request), since none of this coordinator's in-tree drivers actually depend on ACPI
// or kernel tracing being live.
type InMemory struct {
	koid     uint64
	resource uint64
}

// NewInMemory builds a ready-to-use in-process Platform.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (p *InMemory) CreateChannel() (Channel, Channel, error) {
	a, b := NewChannelPair()
	return a, b, nil
}

func (p *InMemory) SpawnHost(name string, rpc Channel, resource Handle) (Process, error) {
	id := atomic.AddUint64(&p.koid, 1)
	slog.Info("devcoord: launch devhost", "name", name, "koid", id)
	return &process{koid: id, name: name}, nil
}

func (p *InMemory) DuplicateResource(h Handle) (Handle, error) {
	id := atomic.AddUint64(&p.resource, 1)
	return &resourceHandle{id: id}, nil
}

func (p *InMemory) RootResource() Handle { return &resourceHandle{id: 0} }

func (p *InMemory) InitACPI() error { return nil }

func (p *InMemory) Reboot() error {
	slog.Info("devcoord: reboot requested")
	return nil
}

func (p *InMemory) PowerOff() error {
	slog.Info("devcoord: poweroff requested")
	return nil
}

func (p *InMemory) KTraceStart() error {
	slog.Info("devcoord: ktrace start")
	return nil
}

func (p *InMemory) KTraceStop() error {
	slog.Info("devcoord: ktrace stop")
	return nil
}

func (p *InMemory) ACPIPS0(arg string) error {
	slog.Info("devcoord: acpi _PS0", "arg", arg)
	return nil
}

func (p *InMemory) KernelDebug(cmd string) error {
	slog.Info("devcoord: kerneldebug", "cmd", cmd)
	return nil
}

func (p *InMemory) LaunchApp(text string) error {
	slog.Info("devcoord: launch application", "cmd", text)
	return nil
}
