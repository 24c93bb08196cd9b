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

// Package devhost manages device-host process lifecycle and the RPC
// channel protocol spoken with each one: launching a host, creating shadow
// devices inside it, sending BIND_DRIVER, and decoding everything a host
// sends back.
package devhost

import (
	"log/slog"

	"github.com/rcornwell/devcoord/device"
	"github.com/rcornwell/devcoord/platform"
)

// Manager launches and releases device-host processes.
type Manager struct {
	platform platform.Platform
	binary   string
}

// NewManager builds a host manager that launches binary for every new
// device host.
func NewManager(p platform.Platform, binary string) *Manager {
	return &Manager{platform: p, binary: binary}
}

// NewHost creates a fresh RPC channel pair, duplicates the root resource
// for the host's side, and spawns the device-host process. On any failure
// both channel ends are closed and no process is left running.
func (m *Manager) NewHost(name string) (*device.Host, error) {
	local, remote, err := m.platform.CreateChannel()
	if err != nil {
		return nil, err
	}
	resource, err := m.platform.DuplicateResource(m.platform.RootResource())
	if err != nil {
		local.Close()
		remote.Close()
		return nil, err
	}
	proc, err := m.platform.SpawnHost(name, remote, resource)
	if err != nil {
		local.Close()
		remote.Close()
		resource.Close()
		return nil, err
	}
	slog.Info("devcoord: new devhost", "name", name, "koid", proc.Koid())
	return &device.Host{Name: name, Channel: local, Process: proc, Koid: proc.Koid()}, nil
}

// Release drops one reference to h, tearing it down (closing its channel,
// killing its process) once the last device referencing it lets go.
func (m *Manager) Release(h *device.Host) {
	if h == nil {
		return
	}
	h.RefCount--
	if h.RefCount > 0 {
		return
	}
	slog.Info("devcoord: releasing devhost", "name", h.Name, "koid", h.Koid)
	if h.Channel != nil {
		h.Channel.Close()
		h.Channel = nil
	}
	if h.Process != nil {
		h.Process.Kill()
		h.Process.Close()
		h.Process = nil
	}
}
