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

// Package dcstatus defines the coordinator's error taxonomy and the wire
// status codes that go with it. STOP is an internal pseudo-status: it tells
// the event port to disarm and tear down a handler and is never written to
// a channel.
package dcstatus

import "errors"

// Code is a coordinator-wide status. Zero is always success.
type Code int32

const (
	OK Code = iota
	InvalidArgs
	BadState
	NotSupported
	NoMemory
	Internal
	PeerClosed
	Stop
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidArgs:
		return "INVALID_ARGS"
	case BadState:
		return "BAD_STATE"
	case NotSupported:
		return "NOT_SUPPORTED"
	case NoMemory:
		return "NO_MEMORY"
	case Internal:
		return "INTERNAL"
	case PeerClosed:
		return "PEER_CLOSED"
	case Stop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Error pairs a Code with a human-readable message and satisfies error.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New builds an Error from a code and message, for call sites that need a
// status distinct from the stock sentinels below.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

var (
	ErrInvalidArgs  = &Error{Code: InvalidArgs, Msg: "invalid arguments"}
	ErrBadState     = &Error{Code: BadState, Msg: "bad state"}
	ErrNotSupported = &Error{Code: NotSupported, Msg: "not supported"}
	ErrNoMemory     = &Error{Code: NoMemory, Msg: "no memory"}
	ErrInternal     = &Error{Code: Internal, Msg: "internal error"}
	ErrPeerClosed   = &Error{Code: PeerClosed, Msg: "peer closed"}
	ErrStop         = &Error{Code: Stop, Msg: "stop"}
)

// CodeOf reports the Code carried by err, OK for nil and Internal for any
// error that didn't originate from this package.
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// WireStatus converts err to the signed status word sent in a status
// reply. STOP never reaches the wire; callers that get it back from a
// dispatch function fold it into a plain OK reply before sending.
func WireStatus(err error) int32 {
	return int32(CodeOf(err))
}
