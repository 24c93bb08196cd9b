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

// Package eventport is the coordinator's single wait point: every armed
// device channel is polled here, and Dispatch delivers at most one ready
// handler per call. It stands in for a kernel event port / epoll set, kept
// as a plain Go poll loop since the coordinator has no real kernel under
// it to wait on.
package eventport

import (
	"time"

	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/platform"
)

// Signal is a bitmask of the conditions that make a channel ready.
type Signal int

const (
	Readable Signal = 1 << iota
	PeerClosed
)

// Handler is armed on the port against one channel. Handle is invoked with
// the signals observed; a non-nil return implicitly disarms the handler.
type Handler interface {
	Channel() platform.Channel
	Handle(signals Signal) error
}

// pollInterval bounds how long Dispatch sleeps between scans while waiting
// for a channel to become ready.
const pollInterval = time.Millisecond

// Port is the coordinator's event port: a set of armed handlers, scanned
// in registration order.
type Port struct {
	order    []platform.Channel
	handlers map[platform.Channel]Handler
}

// NewPort builds an empty port.
func NewPort() *Port {
	return &Port{handlers: map[platform.Channel]Handler{}}
}

// Watch arms h against its channel. Re-arming a channel that is already
// watched is a programmer error, reported as BadState rather than silently
// replacing the existing handler.
func (p *Port) Watch(h Handler) error {
	ch := h.Channel()
	if _, exists := p.handlers[ch]; exists {
		return dcstatus.ErrBadState
	}
	p.handlers[ch] = h
	p.order = append(p.order, ch)
	return nil
}

func (p *Port) unregister(ch platform.Channel) {
	delete(p.handlers, ch)
	for i, c := range p.order {
		if c == ch {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// Dispatch scans the armed set for a ready channel. timeout == 0 returns
// immediately (TIMED_OUT if nothing is ready); timeout < 0 blocks without a
// deadline. At most one handler is invoked per call. A channel whose
// underlying handle has been closed drops silently from the set rather
// than ever being delivered. A handler returning a non-nil error is
// disarmed before Dispatch returns that same error to the caller.
func (p *Port) Dispatch(timeout time.Duration) error {
	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		for _, ch := range p.order {
			if ch.Closed() {
				p.unregister(ch)
				continue
			}
			var signals Signal
			if ch.HasData() {
				signals |= Readable
			}
			if ch.PeerClosed() {
				signals |= PeerClosed
			}
			if signals == 0 {
				continue
			}
			h := p.handlers[ch]
			err := h.Handle(signals)
			if err != nil {
				p.unregister(ch)
			}
			return err
		}
		if timeout == 0 {
			return ErrTimedOut
		}
		if hasDeadline && time.Now().After(deadline) {
			return ErrTimedOut
		}
		time.Sleep(pollInterval)
	}
}

// ErrTimedOut is returned by Dispatch when no handler became ready before
// the deadline; it is a distinct sentinel so callers can tell it apart
// from a handler's own error with errors.Is.
var ErrTimedOut = dcstatus.New(dcstatus.Internal, "TIMED_OUT")
