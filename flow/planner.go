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

// Package flow turns policy decisions into the commands sent to switches.
package flow

import (
	"fmt"
	"time"

	"github.com/superkkt/plum/policy"
	"github.com/superkkt/plum/protocol"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("flow")
)

var (
	// ErrFloodWithPlan is returned for a flood disposition that carries a flow plan.
	ErrFloodWithPlan = errors.New("flood disposition with a flow plan")
	// ErrNoPayload is returned if a packet should be sent but it has neither a buffer ID nor data.
	ErrNoPayload = errors.New("packet has neither buffer ID nor data")
	// ErrInvalidPlan is returned for a flow plan that cannot be installed.
	ErrInvalidPlan = errors.New("invalid flow plan")
)

// InstallFlow is a command to add a flow entry to a switch.
type InstallFlow struct {
	Plan policy.FlowPlan
	// BufferID is the buffered packet that the switch applies the flow to after installing it.
	// protocol.NoBuffer if the flow is not bound to a packet.
	BufferID uint32
}

func (r InstallFlow) String() string {
	return fmt.Sprintf("%v, BufferID=%#x", r.Plan, r.BufferID)
}

// PacketOut is a command to send a packet from a switch.
type PacketOut struct {
	// BufferID is protocol.NoBuffer if Data carries the packet.
	BufferID uint32
	InPort   uint32
	Actions  []policy.Action
	Data     []byte
}

func (r PacketOut) String() string {
	return fmt.Sprintf("BufferID=%#x, InPort=%v, Actions=%v, DataLength=%v", r.BufferID, r.InPort, r.Actions, len(r.Data))
}

// Commands holds the commands for a packet. A switch should receive Install before PacketOut.
type Commands struct {
	Install   *InstallFlow
	PacketOut *PacketOut
}

func (r Commands) Empty() bool {
	return r.Install == nil && r.PacketOut == nil
}

// Planner plans the commands for policy decisions. It is safe for concurrent use.
type Planner struct {
	cache *flowCache
}

// NewPlanner returns a planner that does not send the same flow to a switch again within cacheExpiration after
// the flow has been installed.
func NewPlanner(cacheExpiration time.Duration) *Planner {
	return &Planner{
		cache: newFlowCache(cacheExpiration),
	}
}

func newPacketOut(p *protocol.Packet, actions []policy.Action) (*PacketOut, error) {
	v := &PacketOut{
		BufferID: protocol.NoBuffer,
		InPort:   p.InPort,
		Actions:  actions,
	}
	if p.Buffered() {
		v.BufferID = p.BufferID
		return v, nil
	}
	if len(p.Raw) == 0 {
		return nil, ErrNoPayload
	}
	v.Data = p.Raw

	return v, nil
}

// Plan returns the commands that apply disposition d and flow plan fp, which are decided for packet p received
// from switch dpid.
//
// A flow is bound to the buffered packet if p is buffered, otherwise the packet is sent by an explicit PACKET_OUT.
// Proactive plans are never sent because they have been installed when the switch connected.
func (r *Planner) Plan(dpid uint64, p *protocol.Packet, d policy.Disposition, fp *policy.FlowPlan) (Commands, error) {
	if p == nil {
		panic("nil packet")
	}
	if d == nil {
		panic("nil disposition")
	}
	if fp != nil {
		if err := fp.Validate(); err != nil {
			return Commands{}, errors.Wrap(ErrInvalidPlan, err.Error())
		}
	}

	switch d.(type) {
	case policy.Ignore:
		return Commands{}, nil
	case policy.Drop:
		if fp == nil || fp.Proactive {
			return Commands{}, nil
		}
		// A drop flow has no actions, so the buffered packet is also dropped.
		return Commands{Install: r.install(p, *fp)}, nil
	case policy.Flood:
		if fp != nil {
			return Commands{}, ErrFloodWithPlan
		}
		out, err := newPacketOut(p, policy.ActionsOf(d))
		if err != nil {
			return Commands{}, err
		}
		return Commands{PacketOut: out}, nil
	case policy.Forward, policy.ModifyAndForward:
		return r.forward(dpid, p, d, fp)
	default:
		panic(fmt.Sprintf("unexpected disposition: %T", d))
	}
}

func (r *Planner) install(p *protocol.Packet, fp policy.FlowPlan) *InstallFlow {
	return &InstallFlow{Plan: fp, BufferID: p.BufferID}
}

func (r *Planner) forward(dpid uint64, p *protocol.Packet, d policy.Disposition, fp *policy.FlowPlan) (Commands, error) {
	actions := policy.ActionsOf(d)
	if fp == nil || fp.Proactive || r.cache.InProgress(dpid, fp.Key()) {
		if fp != nil && !fp.Proactive {
			logger.Debugf("skip to install the flow in progress: dpid=%016x, flow={%v}", dpid, fp)
		}
		out, err := newPacketOut(p, actions)
		if err != nil {
			return Commands{}, err
		}
		return Commands{PacketOut: out}, nil
	}

	if p.Buffered() {
		return Commands{Install: r.install(p, *fp)}, nil
	}
	out, err := newPacketOut(p, actions)
	if err != nil {
		return Commands{}, err
	}

	return Commands{Install: &InstallFlow{Plan: *fp, BufferID: protocol.NoBuffer}, PacketOut: out}, nil
}

// Proactive returns the install commands of the plans that should be installed when a switch connects.
func (r *Planner) Proactive(plans []policy.FlowPlan) ([]InstallFlow, error) {
	result := make([]InstallFlow, 0, len(plans))
	for _, v := range plans {
		if err := v.Validate(); err != nil {
			return nil, errors.Wrap(ErrInvalidPlan, err.Error())
		}
		result = append(result, InstallFlow{Plan: v, BufferID: protocol.NoBuffer})
	}

	return result, nil
}

// Installed records that the flow of fp has been sent to switch dpid.
func (r *Planner) Installed(dpid uint64, fp policy.FlowPlan) {
	if fp.Proactive {
		return
	}
	r.cache.Add(dpid, fp.Key())
}

// Forget removes the records of the flows sent to switch dpid.
func (r *Planner) Forget(dpid uint64) {
	r.cache.Remove(dpid)
}

// ForgetAll removes the records of the flows sent to all the switches.
func (r *Planner) ForgetAll() {
	r.cache.RemoveAll()
}
