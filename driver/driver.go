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

// Package driver holds the driver registry and the bind program matcher:
// a small instruction sequence evaluated against a device's protocol id
// and properties to decide whether a driver should bind to it.
package driver

import "github.com/rcornwell/devcoord/device"

// Field names what an instruction compares against.
type Field int

const (
	// FieldProtocol compares against the device's protocol id.
	FieldProtocol Field = iota
	// FieldProp compares against the value of the property named by
	// Instr.PropID, if the device carries one.
	FieldProp
	// FieldAutobind compares against whether this match attempt is an
	// automatic newly-added-device scan (1) or an administrative bind
	// (0), letting a driver opt out of automatic binding.
	FieldAutobind
)

// Cond names the comparison an instruction performs.
type Cond int

const (
	CondEQ Cond = iota
	CondNE
)

// Instr is one bind program instruction.
type Instr struct {
	Field  Field
	PropID uint32
	Cond   Cond
	Value  uint32
}

// Binding is a bind program: every instruction must match (logical AND)
// for the driver to be considered bindable against a device.
type Binding []Instr

// Match evaluates b against a device's protocol id and properties. autobind
// distinguishes an automatic newly-added-device scan from an
// administrative bind, for drivers whose program tests FieldAutobind.
func (b Binding) Match(protocolID uint32, props []device.Prop, autobind bool) bool {
	for _, instr := range b {
		actual, found := lookup(instr, protocolID, props, autobind)
		if !found {
			return false
		}
		switch instr.Cond {
		case CondEQ:
			if actual != instr.Value {
				return false
			}
		case CondNE:
			if actual == instr.Value {
				return false
			}
		}
	}
	return true
}

func lookup(instr Instr, protocolID uint32, props []device.Prop, autobind bool) (uint32, bool) {
	switch instr.Field {
	case FieldProtocol:
		return protocolID, true
	case FieldAutobind:
		if autobind {
			return 1, true
		}
		return 0, true
	case FieldProp:
		for _, p := range props {
			if p.ID == instr.PropID {
				return p.Value, true
			}
		}
	}
	return 0, false
}

// Driver is one entry in the registry: a name, the shared-library path the
// host loads to run it, and the bind program deciding which devices it
// claims.
type Driver struct {
	Name    string
	LibName string
	Binding Binding
}

// Registry holds every driver known to the coordinator. Registering the
// pci driver, or any driver whose bind program is structurally the
// misc-parent match, binds it immediately instead of waiting for the
// generic newly-added-device scan: this mirrors the upstream
// coordinator's short-circuit for the two bootstrap-critical drivers.
type Registry struct {
	drivers  []*Driver
	bindRoot func(*Driver) error
	bindMisc func(*Driver) error
}

// NewRegistry builds an empty registry. bindRoot and bindMisc are called
// by Register for the pci driver and the structurally-recognized misc
// driver, respectively.
func NewRegistry(bindRoot, bindMisc func(*Driver) error) *Registry {
	return &Registry{bindRoot: bindRoot, bindMisc: bindMisc}
}

// Register adds drv to the registry, immediately binding it to root or
// misc if it is one of the two recognized bootstrap drivers.
func (r *Registry) Register(drv *Driver) error {
	r.drivers = append(r.drivers, drv)
	switch {
	case drv.Name == "pci":
		return r.bindRoot(drv)
	case isMiscDriver(drv):
		return r.bindMisc(drv)
	}
	return nil
}

// All returns every registered driver, in registration order.
func (r *Registry) All() []*Driver {
	return r.drivers
}

// IsBindable reports whether drv's bind program matches a device with the
// given protocol id and properties.
func (r *Registry) IsBindable(drv *Driver, protocolID uint32, props []device.Prop, autobind bool) bool {
	return drv.Binding.Match(protocolID, props, autobind)
}

// isMiscDriver recognizes the one-instruction bind program
// "protocol == misc parent", the structural signature the upstream
// coordinator uses to fast-path the misc driver at registration time.
func isMiscDriver(drv *Driver) bool {
	return len(drv.Binding) == 1 &&
		drv.Binding[0].Field == FieldProtocol &&
		drv.Binding[0].Cond == CondEQ &&
		drv.Binding[0].Value == device.MiscParentProtocol
}
