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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/superkkt/plum/learning"
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateActive
)

func (r State) String() string {
	switch r {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Capabilities are the switch features reported in the handshake.
type Capabilities struct {
	NumBuffers uint32
	NumTables  uint8
}

// Switch is the controller-side state of a switch.
type Switch struct {
	mutex       sync.Mutex
	dpid        uint64
	state       State
	caps        Capabilities
	table       *learning.Table
	connectedAt time.Time
	counters    Counters
}

// Counters are the numbers of the packets handled for a switch since it has been connected.
type Counters struct {
	PacketIn    uint64 `json:"packet_in"`
	Ignored     uint64 `json:"ignored"`
	Malformed   uint64 `json:"malformed"`
	Dropped     uint64 `json:"dropped"`
	Forwarded   uint64 `json:"forwarded"`
	Flooded     uint64 `json:"flooded"`
	FlowInstall uint64 `json:"flow_install"`
	PacketOut   uint64 `json:"packet_out"`
}

// SwitchStatus is a snapshot of a switch.
type SwitchStatus struct {
	DPID        string    `json:"dpid"`
	State       string    `json:"state"`
	NumBuffers  uint32    `json:"num_buffers"`
	NumTables   uint8     `json:"num_tables"`
	ConnectedAt time.Time `json:"connected_at"`
	Hosts       int       `json:"hosts"`
	Counters    Counters  `json:"counters"`
}

func newSwitch(dpid uint64) *Switch {
	return &Switch{
		dpid:  dpid,
		state: StateDisconnected,
		table: learning.New(),
	}
}

func FormatDPID(dpid uint64) string {
	return fmt.Sprintf("%016x", dpid)
}

func (r *Switch) DPID() uint64 {
	return r.dpid
}

func (r *Switch) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.state
}

func (r *Switch) setState(s State) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	logger.Debugf("switch %v: state %v -> %v", FormatDPID(r.dpid), r.state, s)
	r.state = s
}

// connect moves a disconnected switch to the connected state. It returns false if the switch is not disconnected.
func (r *Switch) connect(caps Capabilities) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StateDisconnected {
		return false
	}
	r.state = StateConnected
	r.caps = caps
	r.connectedAt = time.Now()
	r.counters = Counters{}
	// Host locations learned in a previous connection may be stale.
	r.table.Reset()

	return true
}

// Table returns the learning table of this switch.
func (r *Switch) Table() *learning.Table {
	return r.table
}

func (r *Switch) count(f func(c *Counters)) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	f(&r.counters)
}

func (r *Switch) Status() SwitchStatus {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return SwitchStatus{
		DPID:        FormatDPID(r.dpid),
		State:       r.state.String(),
		NumBuffers:  r.caps.NumBuffers,
		NumTables:   r.caps.NumTables,
		ConnectedAt: r.connectedAt,
		Hosts:       r.table.Len(),
		Counters:    r.counters,
	}
}

// ParseDPID parses a hexadecimal DPID that may have colons, such as 00:00:00:00:00:00:00:01.
func ParseDPID(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(s, ":", ""), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid DPID: %v", s)
	}

	return v, nil
}
