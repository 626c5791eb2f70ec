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
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/superkkt/plum/openflow"
)

// Match is an OXM flow match. A field that is not set is wildcarded.
type Match struct {
	err   error
	mutex sync.Mutex
	m     map[uint8]interface{}
}

// NewMatch returns a Match whose fields are all wildcarded
func NewMatch() *Match {
	return &Match{
		m: make(map[uint8]interface{}),
	}
}

func (r *Match) Error() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.err
}

func (r *Match) SetInPort(port uint32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.m[OFPXMT_OFB_IN_PORT] = port
}

func (r *Match) InPort() (wildcard bool, port uint32) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, ok := r.m[OFPXMT_OFB_IN_PORT]
	if !ok {
		return true, 0
	}

	return false, v.(uint32)
}

func (r *Match) SetEtherType(t uint16) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.m[OFPXMT_OFB_ETH_TYPE] = t
}

func (r *Match) EtherType() (wildcard bool, etherType uint16) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, ok := r.m[OFPXMT_OFB_ETH_TYPE]
	if !ok {
		return true, 0
	}

	return false, v.(uint16)
}

func (r *Match) setMAC(field uint8, mac net.HardwareAddr) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(mac) != 6 {
		r.err = fmt.Errorf("SetMAC: %v", openflow.ErrInvalidMACAddress)
		return
	}
	// Deep copy
	v := make(net.HardwareAddr, 6)
	copy(v, mac)
	r.m[field] = v
}

func (r *Match) mac(field uint8) (wildcard bool, mac net.HardwareAddr) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, ok := r.m[field]
	if !ok {
		return true, nil
	}

	return false, v.(net.HardwareAddr)
}

func (r *Match) SetSrcMAC(mac net.HardwareAddr) {
	r.setMAC(OFPXMT_OFB_ETH_SRC, mac)
}

func (r *Match) SrcMAC() (wildcard bool, mac net.HardwareAddr) {
	return r.mac(OFPXMT_OFB_ETH_SRC)
}

func (r *Match) SetDstMAC(mac net.HardwareAddr) {
	r.setMAC(OFPXMT_OFB_ETH_DST, mac)
}

func (r *Match) DstMAC() (wildcard bool, mac net.HardwareAddr) {
	return r.mac(OFPXMT_OFB_ETH_DST)
}

// NOTE: The caller should lock the mutex before calling this function.
func (r *Match) isIPv4() error {
	etherType, ok := r.m[OFPXMT_OFB_ETH_TYPE]
	if !ok {
		return openflow.ErrMissingEtherType
	}
	if etherType.(uint16) != 0x0800 {
		return openflow.ErrUnsupportedEtherType
	}

	return nil
}

func (r *Match) SetIPProtocol(p uint8) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.isIPv4(); err != nil {
		r.err = fmt.Errorf("SetIPProtocol: %v", err)
		return
	}
	r.m[OFPXMT_OFB_IP_PROTO] = p
}

func (r *Match) IPProtocol() (wildcard bool, protocol uint8) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, ok := r.m[OFPXMT_OFB_IP_PROTO]
	if !ok {
		return true, 0
	}

	return false, v.(uint8)
}

func (r *Match) setIP(field uint8, ip net.IP) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.isIPv4(); err != nil {
		r.err = fmt.Errorf("SetIP: %v", err)
		return
	}
	v := ip.To4()
	if v == nil {
		r.err = fmt.Errorf("SetIP: %v", openflow.ErrInvalidIPAddress)
		return
	}
	// Deep copy
	addr := make(net.IP, 4)
	copy(addr, v)
	r.m[field] = addr
}

func (r *Match) ip(field uint8) net.IP {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	v, ok := r.m[field]
	if !ok {
		return nil
	}

	return v.(net.IP)
}

func (r *Match) SetSrcIP(ip net.IP) {
	r.setIP(OFPXMT_OFB_IPV4_SRC, ip)
}

// SrcIP returns nil if the source IP address is wildcarded.
func (r *Match) SrcIP() net.IP {
	return r.ip(OFPXMT_OFB_IPV4_SRC)
}

func (r *Match) SetDstIP(ip net.IP) {
	r.setIP(OFPXMT_OFB_IPV4_DST, ip)
}

// DstIP returns nil if the destination IP address is wildcarded.
func (r *Match) DstIP() net.IP {
	return r.ip(OFPXMT_OFB_IPV4_DST)
}

func oxmHeader(field uint8, length uint8) uint32 {
	return OFPXMC_OPENFLOW_BASIC<<16 | uint32(field)<<9 | 0x0<<8 | uint32(length)
}

func marshalHardwareAddrTLV(field uint8, mac net.HardwareAddr) []byte {
	data := make([]byte, 10)
	binary.BigEndian.PutUint32(data[0:4], oxmHeader(field, 6))
	copy(data[4:], mac)

	return data
}

func marshalIPTLV(field uint8, ip net.IP) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data[0:4], oxmHeader(field, 4))
	copy(data[4:], ip.To4())

	return data
}

func marshalUint8TLV(field uint8, v uint8) []byte {
	data := make([]byte, 5)
	binary.BigEndian.PutUint32(data[0:4], oxmHeader(field, 1))
	data[4] = v

	return data
}

func marshalUint16TLV(field uint8, v uint16) []byte {
	data := make([]byte, 6)
	binary.BigEndian.PutUint32(data[0:4], oxmHeader(field, 2))
	binary.BigEndian.PutUint16(data[4:6], v)

	return data
}

func marshalUint32TLV(field uint8, v uint32) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint32(data[0:4], oxmHeader(field, 4))
	binary.BigEndian.PutUint32(data[4:8], v)

	return data
}

func marshalTLV(field uint8, v interface{}) []byte {
	switch field {
	case OFPXMT_OFB_IN_PORT:
		return marshalUint32TLV(field, v.(uint32))
	case OFPXMT_OFB_ETH_DST, OFPXMT_OFB_ETH_SRC:
		return marshalHardwareAddrTLV(field, v.(net.HardwareAddr))
	case OFPXMT_OFB_ETH_TYPE:
		return marshalUint16TLV(field, v.(uint16))
	case OFPXMT_OFB_IP_PROTO:
		return marshalUint8TLV(field, v.(uint8))
	case OFPXMT_OFB_IPV4_SRC, OFPXMT_OFB_IPV4_DST:
		return marshalIPTLV(field, v.(net.IP))
	default:
		panic(fmt.Sprintf("unexpected TLV type: %v", field))
	}
}

// MarshalBinary encodes the match fields in ascending OXM field order so that equal matches always have the
// same encoding. The order also satisfies the OXM prerequisite ordering (ETH_TYPE before IP_PROTO and IPV4_*).
func (r *Match) MarshalBinary() ([]byte, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	fields := make([]int, 0, len(r.m))
	for k := range r.m {
		fields = append(fields, int(k))
	}
	sort.Ints(fields)

	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], OFPMT_OXM)
	for _, f := range fields {
		data = append(data, marshalTLV(uint8(f), r.m[uint8(f)])...)
	}
	// ofp_match.length does not include padding
	binary.BigEndian.PutUint16(data[2:4], uint16(len(data)))
	// Add padding to align as a multiple of 8
	rem := len(data) % 8
	if rem > 0 {
		data = append(data, bytes.Repeat([]byte{0}, 8-rem)...)
	}

	return data, nil
}

func (r *Match) UnmarshalBinary(data []byte) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(data) < 4 {
		return openflow.ErrInvalidPacketLength
	}
	if binary.BigEndian.Uint16(data[0:2]) != OFPMT_OXM {
		return openflow.ErrUnsupportedMatchType
	}
	length := binary.BigEndian.Uint16(data[2:4])
	if length < 4 || len(data) < int(length) {
		return openflow.ErrInvalidPacketLength
	}

	return r.unmarshalTLV(data[4:length])
}

// NOTE: The caller should lock the mutex before calling this function.
func (r *Match) unmarshalTLV(data []byte) error {
	buf := data
	// TLV header length is 4 bytes
	for len(buf) >= 4 {
		header := binary.BigEndian.Uint32(buf[0:4])
		class := header >> 16 & 0xFFFF
		if class != OFPXMC_OPENFLOW_BASIC {
			return errors.New("unsupported TLV class")
		}
		field := uint8(header >> 9 & 0x7F)
		hasmask := header >> 8 & 0x1
		length := int(header & 0xFF)
		if len(buf) < 4+length {
			return openflow.ErrInvalidPacketLength
		}
		value := buf[4 : 4+length]

		switch field {
		case OFPXMT_OFB_IN_PORT:
			if length != 4 {
				return openflow.ErrInvalidPacketLength
			}
			r.m[field] = binary.BigEndian.Uint32(value)
		case OFPXMT_OFB_ETH_DST, OFPXMT_OFB_ETH_SRC:
			if length < 6 {
				return openflow.ErrInvalidPacketLength
			}
			mac := make(net.HardwareAddr, 6)
			copy(mac, value[0:6])
			r.m[field] = mac
		case OFPXMT_OFB_ETH_TYPE:
			if length != 2 {
				return openflow.ErrInvalidPacketLength
			}
			r.m[field] = binary.BigEndian.Uint16(value)
		case OFPXMT_OFB_IP_PROTO:
			if length != 1 {
				return openflow.ErrInvalidPacketLength
			}
			r.m[field] = value[0]
		case OFPXMT_OFB_IPV4_SRC, OFPXMT_OFB_IPV4_DST:
			if length < 4 {
				return openflow.ErrInvalidPacketLength
			}
			// Masked addresses are not used by this controller.
			if hasmask == 1 {
				logger.Debugf("ignoring a masked IPv4 match field: field=%v", field)
				break
			}
			ip := make(net.IP, 4)
			copy(ip, value[0:4])
			r.m[field] = ip
		default:
			// Do nothing
		}

		buf = buf[4+length:]
	}

	return nil
}
