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

// Package devfs is the default implementation of device.Publisher: an
// in-memory filesystem tree that mirrors the device tree for the benefit
// of whatever reads it (a real build would expose this over a filesystem
// protocol; here it's just an indexed tree so Publish/Unpublish have
// somewhere real to act).
package devfs

import (
	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/device"
)

// Node is one devfs entry.
type Node struct {
	Name     string
	Device   *device.Device
	Parent   *Node
	Children []*Node
}

// FS is a device.Publisher backed by an in-memory node tree.
type FS struct {
	root  *Node
	index map[*device.Device]*Node
}

// New builds an empty devfs rooted at a synthetic top-level node.
func New() *FS {
	return &FS{root: &Node{Name: ""}, index: map[*device.Device]*Node{}}
}

// Publish adds dev as a child node of parent's devfs node (or of the root
// node, if parent has none yet). Publishing the same device twice without
// an intervening Unpublish is a bad-state error.
func (f *FS) Publish(parent, dev *device.Device) error {
	if _, exists := f.index[dev]; exists {
		return dcstatus.ErrBadState
	}
	parentNode := f.root
	if pn, ok := f.index[parent]; ok {
		parentNode = pn
	}
	node := &Node{Name: dev.Name, Device: dev, Parent: parentNode}
	parentNode.Children = append(parentNode.Children, node)
	f.index[dev] = node
	dev.FSNode = node
	return nil
}

// Unpublish removes dev's devfs node. It is idempotent: unpublishing a
// device that was never published, or already unpublished, is a no-op.
func (f *FS) Unpublish(dev *device.Device) {
	node, ok := f.index[dev]
	if !ok {
		return
	}
	delete(f.index, dev)
	dev.FSNode = nil
	if node.Parent == nil {
		return
	}
	siblings := node.Parent.Children
	for i, n := range siblings {
		if n == node {
			node.Parent.Children = append(siblings[:i], siblings[i+1:]...)
			return
		}
	}
}
