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

// Package workqueue is the coordinator's deferred-work list: device work
// that shouldn't run on the same stack frame that queued it (most notably
// a newly-added device's driver scan) is appended here and drained between
// event port dispatches.
package workqueue

import "github.com/rcornwell/devcoord/device"

// Op names a unit of deferred work.
type Op int

const (
	Idle Op = iota
	DeviceAdded
)

// Item is one entry in the queue.
type Item struct {
	Dev *device.Device
	Op  Op
}

// Queue is a FIFO of work items. Each device may occupy at most one slot
// at a time; queuing a device that is already queued is a programmer
// error and panics, exactly as the device's single queued flag implies.
type Queue struct {
	items []Item
}

// Enqueue appends a work item for dev.
func (q *Queue) Enqueue(dev *device.Device, op Op) error {
	if dev.Queued() {
		panic("workqueue: device already queued")
	}
	dev.SetQueued(true, int(op))
	q.items = append(q.items, Item{Dev: dev, Op: op})
	return nil
}

// Empty reports whether the queue has no pending items.
func (q *Queue) Empty() bool { return len(q.items) == 0 }

// Pop removes and returns the oldest item, clearing the device's queued
// slot before returning so handlers are free to re-enqueue it.
func (q *Queue) Pop() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	it.Dev.SetQueued(false, int(Idle))
	return it, true
}
