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
)

// Disposition is the decision made for a single packet. It is one of Drop, Forward, ModifyAndForward, Flood and
// Ignore.
type Disposition interface {
	disposition()
	String() string
}

// Drop discards the packet.
type Drop struct{}

// Forward sends the packet to OutPort.
type Forward struct {
	OutPort uint32
}

// ModifyAndForward replaces the source MAC address of the packet with NewSrcMAC, and then sends it to OutPort.
type ModifyAndForward struct {
	NewSrcMAC net.HardwareAddr
	OutPort   uint32
}

// Flood sends the packet to all the ports except the ingress port.
type Flood struct{}

// Ignore does nothing for the packet, which should not be treated as host traffic.
type Ignore struct{}

func (Drop) disposition()             {}
func (Forward) disposition()          {}
func (ModifyAndForward) disposition() {}
func (Flood) disposition()            {}
func (Ignore) disposition()           {}

func (Drop) String() string {
	return "Drop"
}

func (r Forward) String() string {
	return fmt.Sprintf("Forward{OutPort=%v}", r.OutPort)
}

func (r ModifyAndForward) String() string {
	return fmt.Sprintf("ModifyAndForward{NewSrcMAC=%v, OutPort=%v}", r.NewSrcMAC, r.OutPort)
}

func (Flood) String() string {
	return "Flood"
}

func (Ignore) String() string {
	return "Ignore"
}

// ActionsOf returns the action list that applies d to a packet. Drop and Ignore have no actions.
func ActionsOf(d Disposition) []Action {
	switch v := d.(type) {
	case Forward:
		return []Action{Output{Port: v.OutPort}}
	case ModifyAndForward:
		return []Action{SetSrcMAC{MAC: v.NewSrcMAC}, Output{Port: v.OutPort}}
	case Flood:
		return []Action{Output{Port: PortFlood}}
	case Drop, Ignore:
		return nil
	default:
		panic(fmt.Sprintf("unexpected disposition: %T", d))
	}
}
