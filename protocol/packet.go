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

// Package protocol classifies the Ethernet frames carried by PACKET_IN messages.
package protocol

import (
	"bytes"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

var (
	// ErrMalformedFrame is returned for a frame that does not have a decodable Ethernet header.
	ErrMalformedFrame = errors.New("malformed Ethernet frame")
	// ErrLinkDiscovery is returned for link discovery frames that must never be handled as host traffic.
	ErrLinkDiscovery = errors.New("link discovery frame")
)

const (
	// NoBuffer means that a packet is not buffered on the switch.
	NoBuffer uint32 = 0xffffffff
)

const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
	EtherTypeLLDP uint16 = 0x88cc

	// EtherTypeLegacyDiscovery is the ethertype of link discovery frames sent by some legacy controllers.
	EtherTypeLegacyDiscovery uint16 = 0xa0f1
)

const (
	IPProtocolICMP uint8 = 1
	IPProtocolTCP  uint8 = 6
	IPProtocolUDP  uint8 = 17
)

// Network is the IPv4 header part of a classified packet.
type Network struct {
	SrcIP    net.IP
	DstIP    net.IP
	Protocol uint8
}

// Transport is the TCP or UDP header part of a classified packet.
type Transport struct {
	SrcPort uint16
	DstPort uint16
}

// Packet is the set of header fields that the policy decision is made on. A Packet must not be
// modified after Classify returns it.
type Packet struct {
	InPort   uint32
	BufferID uint32
	SrcMAC   net.HardwareAddr
	DstMAC   net.HardwareAddr
	// EtherType is the type of the payload after any VLAN tag.
	EtherType uint16
	// Multicast is true if the destination is a broadcast or multicast address.
	Multicast bool
	// Network is nil if the packet is not an IPv4 packet.
	Network *Network
	// Transport is nil if the packet is neither a TCP nor an UDP packet.
	Transport *Transport
	// Raw is the received Ethernet frame.
	Raw []byte
}

// Buffered returns whether the packet is held in a buffer of the switch.
func (r *Packet) Buffered() bool {
	return r.BufferID != NoBuffer
}

// IsIPv4 returns whether this packet carries a decoded IPv4 header.
func (r *Packet) IsIPv4() bool {
	return r.EtherType == EtherTypeIPv4 && r.Network != nil
}

// IPProtocol returns the IP protocol number, and false if the packet is not an IPv4 packet.
func (r *Packet) IPProtocol() (uint8, bool) {
	if !r.IsIPv4() {
		return 0, false
	}

	return r.Network.Protocol, true
}

func (r *Packet) String() string {
	s := fmt.Sprintf("InPort=%v, BufferID=%#x, SrcMAC=%v, DstMAC=%v, EtherType=%#04x, Multicast=%v",
		r.InPort, r.BufferID, r.SrcMAC, r.DstMAC, r.EtherType, r.Multicast)
	if r.Network != nil {
		s += fmt.Sprintf(", SrcIP=%v, DstIP=%v, Protocol=%v", r.Network.SrcIP, r.Network.DstIP, r.Network.Protocol)
	}
	if r.Transport != nil {
		s += fmt.Sprintf(", SrcPort=%v, DstPort=%v", r.Transport.SrcPort, r.Transport.DstPort)
	}

	return s
}

// IsGroupAddress returns whether mac is a broadcast or multicast address.
func IsGroupAddress(mac net.HardwareAddr) bool {
	return len(mac) > 0 && mac[0]&0x01 != 0
}

// IsLinkDiscovery returns whether err means that the classified frame is a link discovery frame.
func IsLinkDiscovery(err error) bool {
	return errors.Cause(err) == ErrLinkDiscovery
}

// IsMalformed returns whether err means that the classified frame is not decodable.
func IsMalformed(err error) bool {
	return errors.Cause(err) == ErrMalformedFrame
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	return bytes.Clone(b)
}

// Classify decodes frame, which is received from inPort of a switch, into a Packet. It returns ErrLinkDiscovery for
// LLDP and legacy discovery frames and ErrMalformedFrame if the frame does not start with a valid Ethernet header.
func Classify(inPort uint32, bufferID uint32, frame []byte) (*Packet, error) {
	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	ethLayer := p.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		if e := p.ErrorLayer(); e != nil {
			return nil, errors.Wrap(ErrMalformedFrame, e.Error().Error())
		}
		return nil, ErrMalformedFrame
	}
	eth := ethLayer.(*layers.Ethernet)

	etherType := uint16(eth.EthernetType)
	if dot1q, ok := p.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q); ok {
		etherType = uint16(dot1q.Type)
	}
	if etherType == EtherTypeLLDP || etherType == EtherTypeLegacyDiscovery {
		return nil, ErrLinkDiscovery
	}

	v := &Packet{
		InPort:    inPort,
		BufferID:  bufferID,
		SrcMAC:    net.HardwareAddr(clone(eth.SrcMAC)),
		DstMAC:    net.HardwareAddr(clone(eth.DstMAC)),
		EtherType: etherType,
		Multicast: IsGroupAddress(eth.DstMAC),
		Raw:       clone(frame),
	}

	if ip, ok := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
		v.Network = &Network{
			SrcIP:    clone(ip.SrcIP.To4()),
			DstIP:    clone(ip.DstIP.To4()),
			Protocol: uint8(ip.Protocol),
		}
	}
	switch l := p.TransportLayer().(type) {
	case *layers.TCP:
		v.Transport = &Transport{SrcPort: uint16(l.SrcPort), DstPort: uint16(l.DstPort)}
	case *layers.UDP:
		v.Transport = &Transport{SrcPort: uint16(l.SrcPort), DstPort: uint16(l.DstPort)}
	}

	return v, nil
}
