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
	"net"

	"github.com/superkkt/plum/openflow"
)

type Port struct {
	Number uint32
	MAC    net.HardwareAddr
	Name   string
	Config uint32
	State  uint32
}

// IsDown returns whether the port is administratively down or has no physical link.
func (r *Port) IsDown() bool {
	return r.Config&OFPPC_PORT_DOWN != 0 || r.State&OFPPS_LINK_DOWN != 0
}

func (r *Port) UnmarshalBinary(data []byte) error {
	if len(data) < 64 {
		return openflow.ErrInvalidPacketLength
	}

	r.Number = binary.BigEndian.Uint32(data[0:4])
	// data[4:8] is padding
	r.MAC = make(net.HardwareAddr, 6)
	copy(r.MAC, data[8:14])
	// data[14:16] is padding
	r.Name = string(bytes.TrimRight(data[16:32], "\x00"))
	r.Config = binary.BigEndian.Uint32(data[32:36])
	r.State = binary.BigEndian.Uint32(data[36:40])

	return nil
}

type PortStatus struct {
	openflow.Message
	Reason uint8
	Port   Port
}

func (r *PortStatus) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	payload := r.Payload()
	if len(payload) < 72 {
		return openflow.ErrInvalidPacketLength
	}
	r.Reason = payload[0]
	// payload[1:8] is padding

	return r.Port.UnmarshalBinary(payload[8:])
}
