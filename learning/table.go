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

// Package learning maintains the host locations that a switch has observed.
package learning

import (
	"bytes"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/op/go-logging"
)

var (
	logger = logging.MustGetLogger("learning")
)

type entry struct {
	port      uint32
	timestamp time.Time
}

// Entry is a snapshot of a learned host location.
type Entry struct {
	MAC       net.HardwareAddr `json:"mac"`
	Port      uint32           `json:"port"`
	Timestamp time.Time        `json:"timestamp"`
}

// Table maps host MAC addresses to the ingress ports of a single switch. The last recorded port always wins and
// entries never expire. A Table is safe for concurrent use.
type Table struct {
	mutex sync.Mutex
	hosts map[[6]byte]entry
}

func New() *Table {
	return &Table{
		hosts: make(map[[6]byte]entry),
	}
}

func toKey(mac net.HardwareAddr) (key [6]byte, ok bool) {
	if len(mac) != 6 {
		return key, false
	}
	copy(key[:], mac)

	return key, true
}

// Record stores port as the location of mac, overwriting any previous location. Broadcast and multicast addresses
// are never recorded because they cannot be a location of a single host. It returns true if the location is new or
// has been changed.
func (r *Table) Record(mac net.HardwareAddr, port uint32) (changed bool) {
	key, ok := toKey(mac)
	if !ok || mac[0]&0x01 != 0 {
		return false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	prev, exist := r.hosts[key]
	r.hosts[key] = entry{port: port, timestamp: time.Now()}
	if exist && prev.port == port {
		return false
	}
	if exist {
		logger.Debugf("host moved: mac=%v, port=%v -> %v", mac, prev.port, port)
	}

	return true
}

// Lookup returns the most recently recorded port of mac.
func (r *Table) Lookup(mac net.HardwareAddr) (port uint32, ok bool) {
	key, valid := toKey(mac)
	if !valid {
		return 0, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, ok := r.hosts[key]
	if !ok {
		return 0, false
	}

	return v.port, true
}

// Forget removes all the hosts learned on port, and returns the number of removed hosts.
func (r *Table) Forget(port uint32) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	count := 0
	for k, v := range r.hosts {
		if v.port == port {
			delete(r.hosts, k)
			count++
		}
	}

	return count
}

// Reset removes all the learned hosts.
func (r *Table) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.hosts = make(map[[6]byte]entry)
}

func (r *Table) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return len(r.hosts)
}

// Entries returns the learned hosts sorted by their MAC addresses.
func (r *Table) Entries() []Entry {
	r.mutex.Lock()
	result := make([]Entry, 0, len(r.hosts))
	for k, v := range r.hosts {
		mac := make(net.HardwareAddr, 6)
		copy(mac, k[:])
		result = append(result, Entry{MAC: mac, Port: v.port, Timestamp: v.timestamp})
	}
	r.mutex.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return bytes.Compare(result[i].MAC, result[j].MAC) < 0
	})

	return result
}

func (r *Table) String() string {
	var buf bytes.Buffer
	for _, v := range r.Entries() {
		fmt.Fprintf(&buf, "%v -> %v\n", v.MAC, v.Port)
	}

	return buf.String()
}
