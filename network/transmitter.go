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

package network

import (
	"fmt"
	"sync"

	"github.com/superkkt/plum/flow"
	"github.com/superkkt/plum/openflow/of13"
	"github.com/superkkt/plum/openflow/transceiver"
	"github.com/superkkt/plum/policy"
	"github.com/superkkt/plum/protocol"

	"github.com/pkg/errors"
)

// sessionPool holds the active sessions keyed by DPID, and delivers the commands to them.
type sessionPool struct {
	mutex    sync.Mutex
	sessions map[uint64]*session
}

func newSessionPool() *sessionPool {
	return &sessionPool{
		sessions: make(map[uint64]*session),
	}
}

// add adds s if there is no session for dpid. Otherwise, it returns the existing session.
func (r *sessionPool) add(dpid uint64, s *session) (prev *session, ok bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if v, exist := r.sessions[dpid]; exist {
		return v, false
	}
	r.sessions[dpid] = s

	return nil, true
}

// remove removes the session for dpid only if it is s.
func (r *sessionPool) remove(dpid uint64, s *session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if v, ok := r.sessions[dpid]; ok && v == s {
		delete(r.sessions, dpid)
	}
}

func (r *sessionPool) get(dpid uint64) (*session, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	s, ok := r.sessions[dpid]
	return s, ok
}

func (r *sessionPool) InstallFlow(dpid uint64, f flow.InstallFlow) error {
	s, ok := r.get(dpid)
	if !ok {
		return errors.Wrapf(ErrUnknownSwitch, "dpid=%v", FormatDPID(dpid))
	}

	msg, err := newFlowMod(s, f)
	if err != nil {
		return err
	}

	return s.Write(msg)
}

func (r *sessionPool) SendPacketOut(dpid uint64, p flow.PacketOut) error {
	s, ok := r.get(dpid)
	if !ok {
		return errors.Wrapf(ErrUnknownSwitch, "dpid=%v", FormatDPID(dpid))
	}

	msg, err := newPacketOut(s, p)
	if err != nil {
		return err
	}

	return s.Write(msg)
}

func newMatch(m policy.Match) (*of13.Match, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	match := of13.NewMatch()
	if m.InPort != 0 {
		match.SetInPort(m.InPort)
	}
	// Ethernet type should be set before the IP fields.
	if m.EtherType != 0 {
		match.SetEtherType(m.EtherType)
	}
	if m.SrcMAC != nil {
		match.SetSrcMAC(m.SrcMAC)
	}
	if m.DstMAC != nil {
		match.SetDstMAC(m.DstMAC)
	}
	if m.IPProtocol != 0 {
		match.SetIPProtocol(m.IPProtocol)
	}
	if m.SrcIP != nil {
		match.SetSrcIP(m.SrcIP)
	}
	if m.DstIP != nil {
		match.SetDstIP(m.DstIP)
	}
	if err := match.Error(); err != nil {
		return nil, err
	}

	return match, nil
}

// newAction returns nil for an empty action list, which drops the packet.
func newAction(actions []policy.Action) (*of13.Action, error) {
	if len(actions) == 0 {
		return nil, nil
	}

	action := of13.NewAction()
	output := false
	for _, v := range actions {
		switch a := v.(type) {
		case policy.SetSrcMAC:
			action.SetSrcMAC(a.MAC)
		case policy.Output:
			if output {
				return nil, errors.New("multiple output actions")
			}
			action.SetOutPort(a.Port)
			output = true
		default:
			return nil, fmt.Errorf("unexpected action: %T", v)
		}
	}
	if err := action.Error(); err != nil {
		return nil, err
	}

	return action, nil
}

func newFlowMod(w transceiver.Writer, f flow.InstallFlow) (*of13.FlowMod, error) {
	match, err := newMatch(f.Plan.Match)
	if err != nil {
		return nil, errors.Wrap(err, "invalid flow match")
	}
	action, err := newAction(f.Plan.Actions)
	if err != nil {
		return nil, errors.Wrap(err, "invalid flow action")
	}

	msg := of13.NewFlowMod(w.NewXID(), of13.OFPFC_ADD)
	msg.SetTableID(0)
	msg.SetPriority(f.Plan.Priority)
	msg.SetIdleTimeout(f.Plan.IdleTimeout)
	msg.SetHardTimeout(f.Plan.HardTimeout)
	msg.SetBufferID(f.BufferID)
	msg.SetFlowMatch(match)
	if action != nil {
		msg.SetFlowInstruction(&of13.ApplyAction{Action: action})
	}

	return msg, nil
}

func newPacketOut(w transceiver.Writer, p flow.PacketOut) (*of13.PacketOut, error) {
	if p.BufferID == protocol.NoBuffer && len(p.Data) == 0 {
		return nil, flow.ErrNoPayload
	}
	action, err := newAction(p.Actions)
	if err != nil {
		return nil, errors.Wrap(err, "invalid packet out action")
	}

	msg := of13.NewPacketOut(w.NewXID())
	msg.SetBufferID(p.BufferID)
	msg.SetInPort(p.InPort)
	if action != nil {
		msg.SetAction(action)
	}
	if p.BufferID == protocol.NoBuffer {
		msg.SetData(p.Data)
	}

	return msg, nil
}

func newRemovingAllFlows(w transceiver.Writer) *of13.FlowMod {
	msg := of13.NewFlowMod(w.NewXID(), of13.OFPFC_DELETE)
	msg.SetTableID(of13.OFPTT_ALL)
	// Wildcard
	msg.SetFlowMatch(of13.NewMatch())

	return msg
}
