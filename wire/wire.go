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

// Package wire holds the constants shared between the device tree and the
// RPC framing layer, since both need to agree on the same bounds without
// either one importing the other.
package wire

const (
	// MaxNameLen is the longest a device name may be, not counting the
	// NUL terminator carried on the wire.
	MaxNameLen = 32

	// PropSize is the encoded size in bytes of one device property
	// triple (id, reserved, value), each a little-endian uint32.
	PropSize = 12

	// HeaderSize is the size in bytes of the fixed portion of a framed
	// RPC message: txid, op, protocol_id, namelen, argslen, datalen.
	HeaderSize = 24

	// StatusSize is the size in bytes of a status reply: txid, status.
	StatusSize = 8
)
