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
	"encoding/binary"
	"strings"

	"github.com/superkkt/plum/openflow"
)

type FeaturesRequest struct {
	openflow.Message
}

func NewFeaturesRequest(xid uint32) *FeaturesRequest {
	return &FeaturesRequest{
		Message: openflow.NewMessage(openflow.OF13_VERSION, OFPT_FEATURES_REQUEST, xid),
	}
}

// Capability is the ofp_capabilities bitmap of a switch.
type Capability uint32

var capabilityNames = []struct {
	flag Capability
	name string
}{
	{OFPC_FLOW_STATS, "FLOW_STATS"},
	{OFPC_TABLE_STATS, "TABLE_STATS"},
	{OFPC_PORT_STATS, "PORT_STATS"},
	{OFPC_GROUP_STATS, "GROUP_STATS"},
	{OFPC_IP_REASM, "IP_REASM"},
	{OFPC_QUEUE_STATS, "QUEUE_STATS"},
	{OFPC_PORT_BLOCKED, "PORT_BLOCKED"},
}

func (r Capability) Has(flag Capability) bool {
	return r&flag == flag
}

func (r Capability) String() string {
	var names []string
	for _, v := range capabilityNames {
		if r.Has(v.flag) {
			names = append(names, v.name)
		}
	}

	return strings.Join(names, "|")
}

// FeaturesReply is the ofp_switch_features message that identifies a switch.
type FeaturesReply struct {
	openflow.Message
	DPID         uint64
	NumBuffers   uint32
	NumTables    uint8
	AuxID        uint8
	Capabilities Capability
}

func (r *FeaturesReply) UnmarshalBinary(data []byte) error {
	if err := r.Message.UnmarshalBinary(data); err != nil {
		return err
	}

	body := r.Payload()
	if len(body) < 24 {
		return openflow.ErrInvalidPacketLength
	}
	r.DPID = binary.BigEndian.Uint64(body[0:8])
	r.NumBuffers = binary.BigEndian.Uint32(body[8:12])
	r.NumTables = body[12]
	r.AuxID = body[13]
	r.Capabilities = Capability(binary.BigEndian.Uint32(body[16:20]))

	return nil
}
