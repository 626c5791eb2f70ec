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

package policy

import (
	"fmt"
	"net"
	"strings"

	"github.com/superkkt/plum/protocol"

	"github.com/pkg/errors"
)

const (
	// PortFlood sends a packet to all the ports except the ingress port.
	PortFlood uint32 = 0xfffffffb
	// PortController sends a packet to the controller.
	PortController uint32 = 0xfffffffd
	// PortMax is the largest physical port number.
	PortMax uint32 = 0xffffff00
)

// Action is an element of a flow's action list. It is either Output or SetSrcMAC.
type Action interface {
	action()
	String() string
}

// Output sends a packet to Port, which is a physical port number, PortFlood or PortController.
type Output struct {
	Port uint32
}

// SetSrcMAC replaces the source MAC address of a packet.
type SetSrcMAC struct {
	MAC net.HardwareAddr
}

func (Output) action()    {}
func (SetSrcMAC) action() {}

func (r Output) String() string {
	switch r.Port {
	case PortFlood:
		return "output:FLOOD"
	case PortController:
		return "output:CONTROLLER"
	default:
		return fmt.Sprintf("output:%v", r.Port)
	}
}

func (r SetSrcMAC) String() string {
	return fmt.Sprintf("set_field:eth_src=%v", r.MAC)
}

// Match is a flow match pattern. A zero value field is wildcarded. OpenFlow port numbers start at 1, and neither
// zero Ethernet type nor zero IP protocol is used by the policy, so zero never needs to be matched exactly.
type Match struct {
	InPort     uint32
	EtherType  uint16
	SrcMAC     net.HardwareAddr
	DstMAC     net.HardwareAddr
	IPProtocol uint8
	SrcIP      net.IP
	DstIP      net.IP
}

// Validate checks the OXM prerequisites: IP protocol and IPv4 addresses require the IPv4 Ethernet type.
func (r Match) Validate() error {
	if r.IPProtocol != 0 || r.SrcIP != nil || r.DstIP != nil {
		if r.EtherType != protocol.EtherTypeIPv4 {
			return errors.New("IPv4 match fields without IPv4 Ethernet type")
		}
	}
	if r.SrcMAC != nil && len(r.SrcMAC) != 6 {
		return errors.New("invalid source MAC address")
	}
	if r.DstMAC != nil && len(r.DstMAC) != 6 {
		return errors.New("invalid destination MAC address")
	}
	if r.SrcIP != nil && r.SrcIP.To4() == nil {
		return errors.New("invalid source IPv4 address")
	}
	if r.DstIP != nil && r.DstIP.To4() == nil {
		return errors.New("invalid destination IPv4 address")
	}

	return nil
}

// IsWildcard returns whether all the fields are wildcarded.
func (r Match) IsWildcard() bool {
	return r.InPort == 0 && r.EtherType == 0 && r.SrcMAC == nil && r.DstMAC == nil &&
		r.IPProtocol == 0 && r.SrcIP == nil && r.DstIP == nil
}

// String returns a canonical representation of the match that is also usable as a map key.
func (r Match) String() string {
	fields := make([]string, 0, 7)
	if r.InPort != 0 {
		fields = append(fields, fmt.Sprintf("in_port=%v", r.InPort))
	}
	if r.EtherType != 0 {
		fields = append(fields, fmt.Sprintf("eth_type=%#04x", r.EtherType))
	}
	if r.SrcMAC != nil {
		fields = append(fields, fmt.Sprintf("eth_src=%v", r.SrcMAC))
	}
	if r.DstMAC != nil {
		fields = append(fields, fmt.Sprintf("eth_dst=%v", r.DstMAC))
	}
	if r.IPProtocol != 0 {
		fields = append(fields, fmt.Sprintf("ip_proto=%v", r.IPProtocol))
	}
	if r.SrcIP != nil {
		fields = append(fields, fmt.Sprintf("ipv4_src=%v", r.SrcIP))
	}
	if r.DstIP != nil {
		fields = append(fields, fmt.Sprintf("ipv4_dst=%v", r.DstIP))
	}
	if len(fields) == 0 {
		return "any"
	}

	return strings.Join(fields, ",")
}

// FlowPlan describes a flow entry that should be installed on a switch.
type FlowPlan struct {
	// Rule is the name of the policy rule that made this plan.
	Rule     string
	Priority uint16
	Match    Match
	// Actions is empty for a flow that drops matched packets.
	Actions []Action
	// Timeouts in seconds. Zero means no timeout.
	IdleTimeout uint16
	HardTimeout uint16
	// Proactive plans are installed when a switch connects, not in response to a packet.
	Proactive bool
}

func (r FlowPlan) Validate() error {
	if err := r.Match.Validate(); err != nil {
		return errors.Wrapf(err, "rule %v", r.Rule)
	}

	for i, v := range r.Actions {
		switch a := v.(type) {
		case Output:
			if a.Port == 0 || (a.Port > PortMax && a.Port != PortFlood && a.Port != PortController) {
				return fmt.Errorf("rule %v: invalid output port: %v", r.Rule, a.Port)
			}
			if a.Port == PortFlood {
				return fmt.Errorf("rule %v: flow entry with flood output", r.Rule)
			}
			if i != len(r.Actions)-1 {
				return fmt.Errorf("rule %v: output should be the last action", r.Rule)
			}
		case SetSrcMAC:
			if !validMAC(a.MAC) {
				return fmt.Errorf("rule %v: invalid MAC address to set: %v", r.Rule, a.MAC)
			}
		default:
			return fmt.Errorf("rule %v: unexpected action: %T", r.Rule, v)
		}
	}

	return nil
}

func actionString(actions []Action) string {
	if len(actions) == 0 {
		return "drop"
	}

	v := make([]string, len(actions))
	for i, a := range actions {
		v[i] = a.String()
	}

	return strings.Join(v, ",")
}

// Key identifies the flow entry that this plan installs. Plans that differ only in their rule name or timeouts have
// the same key.
func (r FlowPlan) Key() string {
	return fmt.Sprintf("%v/%v/%v", r.Priority, r.Match, actionString(r.Actions))
}

func (r FlowPlan) String() string {
	return fmt.Sprintf("Rule=%v, Priority=%v, Match=%v, Actions=%v, IdleTimeout=%v, HardTimeout=%v, Proactive=%v",
		r.Rule, r.Priority, r.Match, actionString(r.Actions), r.IdleTimeout, r.HardTimeout, r.Proactive)
}
