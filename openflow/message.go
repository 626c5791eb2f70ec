/*
 * Plum - An OpenFlow Policy Controller
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */

package openflow

import (
	"bytes"
	"encoding/binary"
)

// HeaderLength is the size of ofp_header that precedes every OpenFlow message.
const HeaderLength = 8

// Message is the ofp_header of an OpenFlow message followed by its raw body.
type Message struct {
	version uint8
	msgType uint8
	xid     uint32
	length  uint16
	payload []byte
}

func NewMessage(version uint8, msgType uint8, xid uint32) Message {
	return Message{version: version, msgType: msgType, xid: xid, length: HeaderLength}
}

func (r *Message) Version() uint8 {
	return r.version
}

func (r *Message) Type() uint8 {
	return r.msgType
}

func (r *Message) TransactionID() uint32 {
	return r.xid
}

func (r *Message) SetTransactionID(xid uint32) {
	r.xid = xid
}

// Length is the total length of the message including the header.
func (r *Message) Length() uint16 {
	return r.length
}

// SetPayload sets the message body. Message keeps the reference to payload.
func (r *Message) SetPayload(payload []byte) {
	r.payload = payload
	r.length = uint16(HeaderLength + len(payload))
}

// Payload returns a copy of the message body.
func (r *Message) Payload() []byte {
	return bytes.Clone(r.payload)
}

func (r *Message) MarshalBinary() ([]byte, error) {
	length := HeaderLength + len(r.payload)
	if length > 0xFFFF {
		return nil, ErrInvalidPacketLength
	}

	v := make([]byte, HeaderLength, length)
	v[0], v[1] = r.version, r.msgType
	binary.BigEndian.PutUint16(v[2:4], uint16(length))
	binary.BigEndian.PutUint32(v[4:8], r.xid)

	return append(v, r.payload...), nil
}

// UnmarshalBinary decodes the header and keeps the body bounded by the length field. Bytes after the length are
// ignored.
func (r *Message) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderLength {
		return ErrInvalidPacketLength
	}
	length := binary.BigEndian.Uint16(data[2:4])
	if length < HeaderLength || int(length) > len(data) {
		return ErrInvalidPacketLength
	}

	r.version, r.msgType = data[0], data[1]
	r.length = length
	r.xid = binary.BigEndian.Uint32(data[4:8])
	r.payload = data[HeaderLength:length]

	return nil
}
