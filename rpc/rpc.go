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

// Package rpc packs and unpacks the coordinator's wire messages: a fixed
// header followed by data, a NUL-terminated name and NUL-terminated args,
// plus the separate, smaller status-reply format used for replies in both
// directions. The two formats are distinguished purely by length, since a
// status reply is always exactly wire.StatusSize bytes and a general
// message's header alone is already three times that.
package rpc

import (
	"encoding/binary"

	"github.com/rcornwell/devcoord/dcstatus"
	"github.com/rcornwell/devcoord/wire"
)

// Op identifies the kind of a general RPC message.
type Op uint32

const (
	OpAddDevice Op = iota + 1
	OpRemoveDevice
	OpBindDevice
	OpRebindDevice
	OpDMCommand
	OpCreateDevice
	OpBindDriver
)

// Message is a decoded general RPC message.
type Message struct {
	Txid       uint32
	Op         Op
	ProtocolID uint32
	Name       string
	Args       string
	Data       []byte
}

// Pack encodes m into its wire form. Name longer than wire.MaxNameLen or a
// Data length that isn't a whole number of property triples is rejected
// before anything is allocated.
func Pack(m Message) ([]byte, error) {
	if len(m.Name) > wire.MaxNameLen {
		return nil, dcstatus.ErrInvalidArgs
	}
	if len(m.Data)%wire.PropSize != 0 {
		return nil, dcstatus.ErrInvalidArgs
	}

	namelen := uint32(len(m.Name) + 1)
	argslen := uint32(len(m.Args))
	datalen := uint32(len(m.Data))

	buf := make([]byte, wire.HeaderSize, wire.HeaderSize+int(datalen)+int(namelen)+int(argslen)+1)
	binary.LittleEndian.PutUint32(buf[0:4], m.Txid)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.Op))
	binary.LittleEndian.PutUint32(buf[8:12], m.ProtocolID)
	binary.LittleEndian.PutUint32(buf[12:16], namelen)
	binary.LittleEndian.PutUint32(buf[16:20], argslen)
	binary.LittleEndian.PutUint32(buf[20:24], datalen)

	buf = append(buf, m.Data...)
	buf = append(buf, []byte(m.Name)...)
	buf = append(buf, 0)
	buf = append(buf, []byte(m.Args)...)
	buf = append(buf, 0)
	return buf, nil
}

// Unpack decodes a general RPC message. Any structural inconsistency
// (truncated payload, datalen not a multiple of the property-triple size,
// namelen past the bound, a missing NUL terminator) is reported as
// INVALID_ARGS without touching the device that sent it.
func Unpack(b []byte) (Message, error) {
	if len(b) < wire.HeaderSize {
		return Message{}, dcstatus.ErrInvalidArgs
	}
	txid := binary.LittleEndian.Uint32(b[0:4])
	op := Op(binary.LittleEndian.Uint32(b[4:8]))
	protocolID := binary.LittleEndian.Uint32(b[8:12])
	namelen := binary.LittleEndian.Uint32(b[12:16])
	argslen := binary.LittleEndian.Uint32(b[16:20])
	datalen := binary.LittleEndian.Uint32(b[20:24])

	if datalen%wire.PropSize != 0 {
		return Message{}, dcstatus.ErrInvalidArgs
	}
	if namelen == 0 || namelen > wire.MaxNameLen+1 {
		return Message{}, dcstatus.ErrInvalidArgs
	}
	want := wire.HeaderSize + int(datalen) + int(namelen) + int(argslen) + 1
	if len(b) != want {
		return Message{}, dcstatus.ErrInvalidArgs
	}

	off := wire.HeaderSize
	data := append([]byte(nil), b[off:off+int(datalen)]...)
	off += int(datalen)

	nameRaw := b[off : off+int(namelen)]
	if nameRaw[len(nameRaw)-1] != 0 {
		return Message{}, dcstatus.ErrInvalidArgs
	}
	name := string(nameRaw[:len(nameRaw)-1])
	off += int(namelen)

	argsRaw := b[off : off+int(argslen)+1]
	if argsRaw[len(argsRaw)-1] != 0 {
		return Message{}, dcstatus.ErrInvalidArgs
	}
	args := string(argsRaw[:len(argsRaw)-1])

	return Message{
		Txid:       txid,
		Op:         op,
		ProtocolID: protocolID,
		Name:       name,
		Args:       args,
		Data:       data,
	}, nil
}

// PackStatus encodes a status reply: txid and a signed status word, no
// handles, no name, no args.
func PackStatus(txid uint32, status int32) []byte {
	buf := make([]byte, wire.StatusSize)
	binary.LittleEndian.PutUint32(buf[0:4], txid)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(status))
	return buf
}

// UnpackStatus decodes a status reply. b must be exactly wire.StatusSize
// bytes; anything else is not a status reply.
func UnpackStatus(b []byte) (txid uint32, status int32, err error) {
	if len(b) != wire.StatusSize {
		return 0, 0, dcstatus.ErrInternal
	}
	txid = binary.LittleEndian.Uint32(b[0:4])
	status = int32(binary.LittleEndian.Uint32(b[4:8]))
	return txid, status, nil
}

// IsStatus reports whether a received payload of this length is a status
// reply rather than a general message.
func IsStatus(dataLen int) bool {
	return dataLen == wire.StatusSize
}
