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

// Package network runs the switch sessions and sequences the policy decisions for the packets they receive.
package network

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/superkkt/plum/flow"
	"github.com/superkkt/plum/learning"
	"github.com/superkkt/plum/policy"
	"github.com/superkkt/plum/protocol"

	"github.com/davecgh/go-spew/spew"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("network")
)

var (
	ErrDuplicatedSwitch = errors.New("duplicated switch DPID")
	ErrInactiveSwitch   = errors.New("inactive switch")
	ErrUnknownSwitch    = errors.New("unknown switch")
)

// Transmitter delivers the commands to switches.
type Transmitter interface {
	InstallFlow(dpid uint64, f flow.InstallFlow) error
	SendPacketOut(dpid uint64, p flow.PacketOut) error
}

// PacketIn is a packet received from a switch.
type PacketIn struct {
	DPID     uint64
	InPort   uint32
	BufferID uint32
	Data     []byte
}

type Controller struct {
	mutex     sync.Mutex
	switches  map[uint64]*Switch
	evaluator *policy.Evaluator
	planner   *flow.Planner
	tx        Transmitter
	pool      *sessionPool
}

// NewController returns a controller that sends the commands through its own switch sessions, which are added by
// AddConnection.
func NewController(e *policy.Evaluator, p *flow.Planner) *Controller {
	pool := newSessionPool()
	return newController(e, p, pool, pool)
}

func newController(e *policy.Evaluator, p *flow.Planner, tx Transmitter, pool *sessionPool) *Controller {
	if e == nil {
		panic("evaluator is nil")
	}
	if p == nil {
		panic("planner is nil")
	}
	if tx == nil {
		panic("transmitter is nil")
	}
	if pool == nil {
		panic("session pool is nil")
	}

	return &Controller{
		switches:  make(map[uint64]*Switch),
		evaluator: e,
		planner:   p,
		tx:        tx,
		pool:      pool,
	}
}

// AddConnection starts a new switch session on c. The session is closed when ctx is canceled.
func (r *Controller) AddConnection(ctx context.Context, c net.Conn) {
	conf := sessionConfig{
		conn:       c,
		controller: r,
		pool:       r.pool,
	}
	session := newSession(conf)
	go session.Run(ctx)
}

func (r *Controller) getSwitch(dpid uint64) (*Switch, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sw, ok := r.switches[dpid]
	return sw, ok
}

func (r *Controller) activeSwitch(dpid uint64) (*Switch, error) {
	sw, ok := r.getSwitch(dpid)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSwitch, "dpid=%v", FormatDPID(dpid))
	}
	if sw.State() != StateActive {
		return nil, errors.Wrapf(ErrInactiveSwitch, "dpid=%v", FormatDPID(dpid))
	}

	return sw, nil
}

// OnConnect is called when a switch finishes the handshake. It installs the table-miss flow and the permanent
// policy flows, and then activates the switch.
func (r *Controller) OnConnect(dpid uint64, caps Capabilities) error {
	logger.Infof("switch connected: dpid=%v, buffers=%v, tables=%v", FormatDPID(dpid), caps.NumBuffers, caps.NumTables)

	r.mutex.Lock()
	sw, ok := r.switches[dpid]
	if !ok {
		sw = newSwitch(dpid)
		r.switches[dpid] = sw
	}
	r.mutex.Unlock()

	if !sw.connect(caps) {
		return errors.Wrapf(ErrDuplicatedSwitch, "dpid=%v", FormatDPID(dpid))
	}
	// Previous flows of this switch are not on the switch anymore.
	r.planner.Forget(dpid)

	flows, err := r.planner.Proactive(r.evaluator.ProactivePlans())
	if err != nil {
		sw.setState(StateDisconnected)
		return err
	}
	for _, f := range flows {
		if err := r.tx.InstallFlow(dpid, f); err != nil {
			sw.setState(StateDisconnected)
			return errors.Wrapf(err, "failed to install the %v flow", f.Plan.Rule)
		}
		logger.Debugf("installed a proactive flow: dpid=%v, flow={%v}", FormatDPID(dpid), f)
	}
	sw.setState(StateActive)

	return nil
}

// OnPacketIn decides the disposition of a packet received from a switch, and sends the resulting commands to
// the switch.
func (r *Controller) OnPacketIn(ev PacketIn) error {
	sw, err := r.activeSwitch(ev.DPID)
	if err != nil {
		return err
	}
	sw.count(func(c *Counters) { c.PacketIn++ })

	packet, err := protocol.Classify(ev.InPort, ev.BufferID, ev.Data)
	if err != nil {
		switch {
		case protocol.IsLinkDiscovery(err):
			sw.count(func(c *Counters) { c.Ignored++ })
			return nil
		case protocol.IsMalformed(err):
			logger.Debugf("dropping a malformed frame: dpid=%v, inport=%v, err=%v", FormatDPID(ev.DPID), ev.InPort, err)
			sw.count(func(c *Counters) { c.Malformed++ })
			return nil
		default:
			return err
		}
	}
	logger.Debugf("PACKET_IN: dpid=%v, packet={%v}", FormatDPID(ev.DPID), packet)

	// The source location is learned before the decision so that it is known for the reply packets.
	if sw.table.Record(packet.SrcMAC, packet.InPort) {
		logger.Debugf("learned a host: dpid=%v, mac=%v, port=%v", FormatDPID(ev.DPID), packet.SrcMAC, packet.InPort)
	}
	outPort, known := sw.table.Lookup(packet.DstMAC)

	disposition, plan := r.evaluator.Evaluate(packet, outPort, known)
	switch disposition.(type) {
	case policy.Drop:
		sw.count(func(c *Counters) { c.Dropped++ })
	case policy.Flood:
		sw.count(func(c *Counters) { c.Flooded++ })
	case policy.Forward, policy.ModifyAndForward:
		sw.count(func(c *Counters) { c.Forwarded++ })
	}

	commands, err := r.planner.Plan(ev.DPID, packet, disposition, plan)
	if err != nil {
		return errors.Wrapf(err, "failed to plan the commands for %v", disposition)
	}

	return r.transmit(sw, commands)
}

func (r *Controller) transmit(sw *Switch, c flow.Commands) error {
	if c.Install != nil {
		if err := r.tx.InstallFlow(sw.dpid, *c.Install); err != nil {
			return errors.Wrap(err, "failed to install a flow")
		}
		r.planner.Installed(sw.dpid, c.Install.Plan)
		sw.count(func(c *Counters) { c.FlowInstall++ })
		logger.Debugf("installed a flow: dpid=%v, flow={%v}", FormatDPID(sw.dpid), c.Install)
	}
	if c.PacketOut != nil {
		if err := r.tx.SendPacketOut(sw.dpid, *c.PacketOut); err != nil {
			return errors.Wrap(err, "failed to send a packet out")
		}
		sw.count(func(c *Counters) { c.PacketOut++ })
		logger.Debugf("sent a packet out: dpid=%v, packet={%v}", FormatDPID(sw.dpid), c.PacketOut)
	}

	return nil
}

// OnPortDown removes the hosts learned on a port that has been removed or has gone down.
func (r *Controller) OnPortDown(dpid uint64, port uint32) {
	sw, ok := r.getSwitch(dpid)
	if !ok {
		return
	}

	n := sw.table.Forget(port)
	logger.Infof("port down: dpid=%v, port=%v, removed hosts=%v", FormatDPID(dpid), port, n)
}

// OnDisconnect is called when the session of a switch is closed. The learned hosts and flow records of the switch
// are removed, and the switch has to connect again to be activated.
func (r *Controller) OnDisconnect(dpid uint64) {
	sw, ok := r.getSwitch(dpid)
	if !ok {
		return
	}

	sw.setState(StateDisconnected)
	sw.table.Reset()
	r.planner.Forget(dpid)
	logger.Infof("switch disconnected: dpid=%v", FormatDPID(dpid))
}

func (r *Controller) sortedSwitches() []*Switch {
	r.mutex.Lock()
	switches := make([]*Switch, 0, len(r.switches))
	for _, v := range r.switches {
		switches = append(switches, v)
	}
	r.mutex.Unlock()

	sort.Slice(switches, func(i, j int) bool { return switches[i].dpid < switches[j].dpid })
	return switches
}

// Switches returns the status of the switches sorted by DPID.
func (r *Controller) Switches() []SwitchStatus {
	switches := r.sortedSwitches()
	result := make([]SwitchStatus, len(switches))
	for i, v := range switches {
		result[i] = v.Status()
	}

	return result
}

// Hosts returns the hosts learned by a switch.
func (r *Controller) Hosts(dpid uint64) ([]learning.Entry, error) {
	sw, ok := r.getSwitch(dpid)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownSwitch, "dpid=%v", FormatDPID(dpid))
	}

	return sw.table.Entries(), nil
}

// Flush removes the hosts learned by a switch and the flow records of the switch. The flows already installed on
// the switch expire by their idle timeout.
func (r *Controller) Flush(dpid uint64) error {
	sw, ok := r.getSwitch(dpid)
	if !ok {
		return errors.Wrapf(ErrUnknownSwitch, "dpid=%v", FormatDPID(dpid))
	}

	sw.table.Reset()
	r.planner.Forget(dpid)
	logger.Infof("flushed the learned hosts: dpid=%v", FormatDPID(dpid))

	return nil
}

// Rules returns the policy rules in evaluation order.
func (r *Controller) Rules() []policy.RuleInfo {
	return r.evaluator.Rules()
}

func (r *Controller) String() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Policy: %v\n", r.evaluator.Registry())
	for _, v := range r.sortedSwitches() {
		buf.WriteString(spew.Sdump(v.Status()))
		buf.WriteString(v.table.String())
	}

	return buf.String()
}
