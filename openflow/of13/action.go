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

package of13

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"

	"github.com/superkkt/plum/openflow"
)

// Action is an action list. Set-field actions are always applied before the output action.
type Action struct {
	err     error
	srcMAC  net.HardwareAddr
	dstMAC  net.HardwareAddr
	outPort *uint32
}

func NewAction() *Action {
	return &Action{}
}

func (r *Action) Error() error {
	return r.err
}

func (r *Action) SetSrcMAC(mac net.HardwareAddr) {
	if len(mac) != 6 {
		r.err = openflow.ErrInvalidMACAddress
		return
	}
	r.srcMAC = append(net.HardwareAddr(nil), mac...)
}

func (r *Action) SrcMAC() (ok bool, mac net.HardwareAddr) {
	return r.srcMAC != nil, r.srcMAC
}

func (r *Action) SetDstMAC(mac net.HardwareAddr) {
	if len(mac) != 6 {
		r.err = openflow.ErrInvalidMACAddress
		return
	}
	r.dstMAC = append(net.HardwareAddr(nil), mac...)
}

func (r *Action) DstMAC() (ok bool, mac net.HardwareAddr) {
	return r.dstMAC != nil, r.dstMAC
}

func (r *Action) SetOutPort(port uint32) {
	p := port
	r.outPort = &p
}

func (r *Action) OutPort() (ok bool, port uint32) {
	if r.outPort == nil {
		return false, 0
	}

	return true, *r.outPort
}

func marshalOutput(port uint32) []byte {
	v := make([]byte, 16)
	binary.BigEndian.PutUint16(v[0:2], uint16(OFPAT_OUTPUT))
	binary.BigEndian.PutUint16(v[2:4], 16)
	binary.BigEndian.PutUint32(v[4:8], port)
	// Send the whole packet when the output port is the controller
	binary.BigEndian.PutUint16(v[8:10], OFPCML_NO_BUFFER)
	// v[10:16] is padding

	return v
}

func marshalSetMAC(field uint8, mac net.HardwareAddr) []byte {
	tlv := marshalHardwareAddrTLV(field, mac)

	v := make([]byte, 4+len(tlv))
	binary.BigEndian.PutUint16(v[0:2], OFPAT_SET_FIELD)
	copy(v[4:], tlv)
	// Add padding to align as a multiple of 8
	rem := len(v) % 8
	if rem > 0 {
		v = append(v, bytes.Repeat([]byte{0}, 8-rem)...)
	}
	binary.BigEndian.PutUint16(v[2:4], uint16(len(v)))

	return v
}

func (r *Action) MarshalBinary() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	result := make([]byte, 0)
	if r.srcMAC != nil {
		result = append(result, marshalSetMAC(OFPXMT_OFB_ETH_SRC, r.srcMAC)...)
	}
	if r.dstMAC != nil {
		result = append(result, marshalSetMAC(OFPXMT_OFB_ETH_DST, r.dstMAC)...)
	}
	// An action list without output drops the packet.
	if r.outPort != nil {
		result = append(result, marshalOutput(*r.outPort)...)
	}

	return result, nil
}

func (r *Action) UnmarshalBinary(data []byte) error {
	buf := data
	for len(buf) >= 4 {
		t := binary.BigEndian.Uint16(buf[0:2])
		length := binary.BigEndian.Uint16(buf[2:4])
		if length < 4 || len(buf) < int(length) {
			return openflow.ErrInvalidPacketLength
		}

		switch t {
		case OFPAT_OUTPUT:
			if length < 8 {
				return openflow.ErrInvalidPacketLength
			}
			r.SetOutPort(binary.BigEndian.Uint32(buf[4:8]))
		case OFPAT_SET_FIELD:
			if length < 14 {
				return openflow.ErrInvalidPacketLength
			}
			header := binary.BigEndian.Uint32(buf[4:8])
			if header>>16&0xFFFF != OFPXMC_OPENFLOW_BASIC {
				return errors.New("unsupported TLV class")
			}
			switch header >> 9 & 0x7F {
			case OFPXMT_OFB_ETH_DST:
				r.SetDstMAC(buf[8:14])
			case OFPXMT_OFB_ETH_SRC:
				r.SetSrcMAC(buf[8:14])
			default:
				// Do nothing
			}
		default:
			// Do nothing
		}
		if r.err != nil {
			return r.err
		}

		buf = buf[length:]
	}

	return nil
}
