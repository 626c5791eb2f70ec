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
	"net"
	"sync"
	"testing"
	"time"

	"github.com/superkkt/plum/flow"
	"github.com/superkkt/plum/policy"
	"github.com/superkkt/plum/protocol"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

type host struct {
	mac net.HardwareAddr
	ip  net.IP
}

func newHost(n byte) host {
	return host{
		mac: net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, n},
		ip:  net.IPv4(10, 0, 0, n).To4(),
	}
}

var (
	h1 = newHost(1)
	h2 = newHost(2)
	h3 = newHost(3)
	h4 = newHost(4)
	h5 = newHost(5)

	rewriteMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x44}
)

func serialize(t *testing.T, l ...gopacket.SerializableLayer) []byte {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("failed to serialize a frame: %v", err)
	}

	return buf.Bytes()
}

func ipFrame(t *testing.T, src, dst host, proto layers.IPProtocol) []byte {
	eth := &layers.Ethernet{SrcMAC: src.mac, DstMAC: dst.mac, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: src.ip, DstIP: dst.ip}

	switch proto {
	case layers.IPProtocolTCP:
		tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 1024}
		tcp.SetNetworkLayerForChecksum(ip)
		return serialize(t, eth, ip, tcp)
	case layers.IPProtocolUDP:
		udp := &layers.UDP{SrcPort: 5000, DstPort: 6000}
		udp.SetNetworkLayerForChecksum(ip)
		return serialize(t, eth, ip, udp, gopacket.Payload([]byte("hello")))
	case layers.IPProtocolICMPv4:
		icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
		return serialize(t, eth, ip, icmp)
	default:
		t.Fatalf("unexpected IP protocol: %v", proto)
		return nil
	}
}

func arpFrame(t *testing.T, src host, target net.IP) []byte {
	eth := &layers.Ethernet{SrcMAC: src.mac, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   src.mac,
		SourceProtAddress: src.ip.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    target.To4(),
	}

	return serialize(t, eth, arp)
}

type mockTransmitter struct {
	mutex      sync.Mutex
	installs   []flow.InstallFlow
	packetOuts []flow.PacketOut
	err        error
}

func (r *mockTransmitter) InstallFlow(dpid uint64, f flow.InstallFlow) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.err != nil {
		return r.err
	}
	r.installs = append(r.installs, f)
	return nil
}

func (r *mockTransmitter) SendPacketOut(dpid uint64, p flow.PacketOut) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.err != nil {
		return r.err
	}
	r.packetOuts = append(r.packetOuts, p)
	return nil
}

// flush returns the recorded commands and clears them.
func (r *mockTransmitter) flush() ([]flow.InstallFlow, []flow.PacketOut) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	installs, packetOuts := r.installs, r.packetOuts
	r.installs, r.packetOuts = nil, nil
	return installs, packetOuts
}

func testRegistry() policy.HostRegistry {
	return policy.HostRegistry{
		Isolated:   &policy.Host{MAC: h1.mac, IP: h1.ip},
		Rewrite:    &policy.Host{MAC: h4.mac, IP: h4.ip},
		RewriteMAC: rewriteMAC,
		PathSrc:    &policy.Host{MAC: h2.mac, IP: h2.ip},
		PathDst:    &policy.Host{MAC: h3.mac, IP: h3.ip},
	}
}

func newTestController(t *testing.T) (*Controller, *mockTransmitter) {
	e, err := policy.NewEvaluator(testRegistry(), policy.DefaultIdleTimeout)
	if err != nil {
		t.Fatalf("failed to create an evaluator: %v", err)
	}
	tx := new(mockTransmitter)

	return newController(e, flow.NewPlanner(time.Minute), tx, newSessionPool()), tx
}

// newActiveController returns a controller that has an active switch whose DPID is 1.
func newActiveController(t *testing.T) (*Controller, *mockTransmitter) {
	c, tx := newTestController(t)
	if err := c.OnConnect(1, Capabilities{NumBuffers: 256, NumTables: 254}); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	tx.flush()

	return c, tx
}

func packetIn(t *testing.T, c *Controller, inPort, bufferID uint32, frame []byte) {
	if err := c.OnPacketIn(PacketIn{DPID: 1, InPort: inPort, BufferID: bufferID, Data: frame}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// learn makes the switch learn the location of h by a broadcast ARP request.
func learn(t *testing.T, c *Controller, tx *mockTransmitter, h host, port uint32) {
	packetIn(t, c, port, protocol.NoBuffer, arpFrame(t, h, net.IPv4(10, 0, 0, 254).To4()))
	tx.flush()
}

func TestConnect(t *testing.T) {
	c, tx := newTestController(t)

	if err := c.OnConnect(1, Capabilities{NumBuffers: 256, NumTables: 254}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	installs, packetOuts := tx.flush()
	if len(packetOuts) != 0 {
		t.Fatalf("unexpected packet-outs: %v", spew.Sdump(packetOuts))
	}
	if len(installs) != 2 {
		t.Fatalf("expected=2, got=%v: %v", len(installs), spew.Sdump(installs))
	}

	tableMiss := installs[0]
	if tableMiss.Plan.Priority != policy.PriorityTableMiss || !tableMiss.Plan.Match.IsWildcard() {
		t.Fatalf("unexpected table-miss flow: %v", tableMiss)
	}
	if diff := cmp.Diff([]policy.Action{policy.Output{Port: policy.PortController}}, tableMiss.Plan.Actions); diff != "" {
		t.Fatalf("unexpected table-miss actions (-expected +got):\n%v", diff)
	}
	isolation := installs[1]
	if isolation.Plan.Priority != policy.PriorityIsolation || len(isolation.Plan.Actions) != 0 {
		t.Fatalf("unexpected isolation flow: %v", isolation)
	}
	if isolation.Plan.IdleTimeout != 0 || isolation.Plan.HardTimeout != 0 || isolation.BufferID != protocol.NoBuffer {
		t.Fatalf("isolation flow should be permanent: %v", isolation)
	}

	status := c.Switches()
	if len(status) != 1 || status[0].State != StateActive.String() || status[0].NumBuffers != 256 {
		t.Fatalf("unexpected switch status: %v", spew.Sdump(status))
	}

	if err := c.OnConnect(1, Capabilities{}); errors.Cause(err) != ErrDuplicatedSwitch {
		t.Fatalf("expected=%v, got=%v", ErrDuplicatedSwitch, err)
	}
}

func TestConnectFailure(t *testing.T) {
	c, tx := newTestController(t)
	tx.err = errors.New("broken pipe")

	if err := c.OnConnect(1, Capabilities{}); err == nil {
		t.Fatal("expected an error")
	}
	if sw, ok := c.getSwitch(1); !ok || sw.State() != StateDisconnected {
		t.Fatal("expected a disconnected switch")
	}

	// The switch can connect again.
	tx.err = nil
	if err := c.OnConnect(1, Capabilities{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInactiveSwitch(t *testing.T) {
	c, _ := newTestController(t)
	frame := arpFrame(t, h2, h3.ip)

	err := c.OnPacketIn(PacketIn{DPID: 1, InPort: 1, BufferID: protocol.NoBuffer, Data: frame})
	if errors.Cause(err) != ErrUnknownSwitch {
		t.Fatalf("expected=%v, got=%v", ErrUnknownSwitch, err)
	}

	if err := c.OnConnect(1, Capabilities{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.OnDisconnect(1)
	err = c.OnPacketIn(PacketIn{DPID: 1, InPort: 1, BufferID: protocol.NoBuffer, Data: frame})
	if errors.Cause(err) != ErrInactiveSwitch {
		t.Fatalf("expected=%v, got=%v", ErrInactiveSwitch, err)
	}
}

func TestIsolatedHostICMP(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h2, 2)

	// Buffered or not, the ICMP packet is dropped without any command.
	packetIn(t, c, 1, protocol.NoBuffer, ipFrame(t, h1, h2, layers.IPProtocolICMPv4))
	packetIn(t, c, 1, 0x10, ipFrame(t, h1, h5, layers.IPProtocolICMPv4))
	installs, packetOuts := tx.flush()
	if len(installs) != 0 || len(packetOuts) != 0 {
		t.Fatalf("unexpected commands: installs=%v, packetOuts=%v", spew.Sdump(installs), spew.Sdump(packetOuts))
	}
	if n := c.Switches()[0].Counters.Dropped; n != 2 {
		t.Fatalf("expected=2, got=%v", n)
	}
}

func TestUnknownDestinationFloods(t *testing.T) {
	c, tx := newActiveController(t)
	frame := ipFrame(t, h2, h3, layers.IPProtocolTCP)

	packetIn(t, c, 2, protocol.NoBuffer, frame)
	installs, packetOuts := tx.flush()
	if len(installs) != 0 {
		t.Fatalf("unexpected installs: %v", spew.Sdump(installs))
	}
	expected := []flow.PacketOut{
		{
			BufferID: protocol.NoBuffer,
			InPort:   2,
			Actions:  []policy.Action{policy.Output{Port: policy.PortFlood}},
			Data:     frame,
		},
	}
	if diff := cmp.Diff(expected, packetOuts); diff != "" {
		t.Fatalf("unexpected packet-outs (-expected +got):\n%v", diff)
	}

	// The source has been learned.
	hosts, err := c.Hosts(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 || hosts[0].MAC.String() != h2.mac.String() || hosts[0].Port != 2 {
		t.Fatalf("unexpected hosts: %v", spew.Sdump(hosts))
	}
}

func TestDirectedPath(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h3, 3)

	frame := ipFrame(t, h2, h3, layers.IPProtocolTCP)
	packetIn(t, c, 2, protocol.NoBuffer, frame)
	installs, packetOuts := tx.flush()

	expected := []flow.InstallFlow{
		{
			Plan: policy.FlowPlan{
				Rule:     policy.RuleDirectedPath,
				Priority: policy.PriorityDirectedPath,
				Match: policy.Match{
					EtherType:  protocol.EtherTypeIPv4,
					IPProtocol: protocol.IPProtocolTCP,
					SrcIP:      h2.ip,
					DstIP:      h3.ip,
				},
				Actions:     []policy.Action{policy.Output{Port: 3}},
				IdleTimeout: policy.DefaultIdleTimeout,
			},
			BufferID: protocol.NoBuffer,
		},
	}
	if diff := cmp.Diff(expected, installs); diff != "" {
		t.Fatalf("unexpected installs (-expected +got):\n%v", diff)
	}
	if len(packetOuts) != 1 || packetOuts[0].BufferID != protocol.NoBuffer {
		t.Fatalf("unexpected packet-outs: %v", spew.Sdump(packetOuts))
	}
	if diff := cmp.Diff(frame, packetOuts[0].Data); diff != "" {
		t.Fatalf("unexpected packet-out data (-expected +got):\n%v", diff)
	}

	// The same flow is not installed again while it is in progress.
	packetIn(t, c, 2, protocol.NoBuffer, frame)
	installs, packetOuts = tx.flush()
	if len(installs) != 0 || len(packetOuts) != 1 {
		t.Fatalf("unexpected commands: installs=%v, packetOuts=%v", spew.Sdump(installs), spew.Sdump(packetOuts))
	}
}

func TestRewrite(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h5, 5)

	packetIn(t, c, 4, 0x99, ipFrame(t, h4, h5, layers.IPProtocolUDP))
	installs, packetOuts := tx.flush()
	if len(packetOuts) != 0 {
		t.Fatalf("unexpected packet-outs: %v", spew.Sdump(packetOuts))
	}

	expected := []flow.InstallFlow{
		{
			Plan: policy.FlowPlan{
				Rule:     policy.RuleRewrite,
				Priority: policy.PriorityRewrite,
				Match: policy.Match{
					InPort:    4,
					EtherType: protocol.EtherTypeIPv4,
					SrcMAC:    h4.mac,
					DstMAC:    h5.mac,
				},
				Actions:     []policy.Action{policy.SetSrcMAC{MAC: rewriteMAC}, policy.Output{Port: 5}},
				IdleTimeout: policy.DefaultIdleTimeout,
			},
			BufferID: 0x99,
		},
	}
	if diff := cmp.Diff(expected, installs); diff != "" {
		t.Fatalf("unexpected installs (-expected +got):\n%v", diff)
	}
}

func TestARPNeverDropped(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h2, 2)

	// ARP request from the isolated host and the rewrite host.
	for _, h := range []host{h1, h4} {
		packetIn(t, c, 1, protocol.NoBuffer, arpFrame(t, h, h2.ip))
		installs, packetOuts := tx.flush()
		if len(installs) != 0 {
			t.Fatalf("unexpected installs: %v", spew.Sdump(installs))
		}
		if len(packetOuts) != 1 {
			t.Fatalf("expected=1, got=%v", len(packetOuts))
		}
		if diff := cmp.Diff([]policy.Action{policy.Output{Port: policy.PortFlood}}, packetOuts[0].Actions); diff != "" {
			t.Fatalf("unexpected actions (-expected +got):\n%v", diff)
		}
	}
}

func TestLearnFromARP(t *testing.T) {
	c, tx := newActiveController(t)

	// A 16-byte target address must still produce a valid ARP request.
	packetIn(t, c, 3, protocol.NoBuffer, arpFrame(t, h3, net.IPv4(10, 0, 0, 254)))
	installs, packetOuts := tx.flush()
	if len(installs) != 0 || len(packetOuts) != 1 {
		t.Fatalf("unexpected commands: installs=%v, packetOuts=%v", spew.Sdump(installs), spew.Sdump(packetOuts))
	}
	hosts, err := c.Hosts(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 || hosts[0].MAC.String() != h3.mac.String() || hosts[0].Port != 3 {
		t.Fatalf("unexpected hosts: %v", spew.Sdump(hosts))
	}
	if counters := c.Switches()[0].Counters; counters.Malformed != 0 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
}

func TestLearning(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h5, 5)

	packetIn(t, c, 2, 0x20, ipFrame(t, h2, h5, layers.IPProtocolUDP))
	installs, packetOuts := tx.flush()
	if len(packetOuts) != 0 || len(installs) != 1 {
		t.Fatalf("unexpected commands: installs=%v, packetOuts=%v", spew.Sdump(installs), spew.Sdump(packetOuts))
	}
	plan := installs[0].Plan
	if plan.Priority != policy.PriorityLearning || plan.Match.InPort != 2 || plan.Match.DstMAC.String() != h5.mac.String() {
		t.Fatalf("unexpected plan: %v", plan)
	}
	if installs[0].BufferID != 0x20 {
		t.Fatalf("expected=0x20, got=%#x", installs[0].BufferID)
	}
}

func TestIgnoredFrames(t *testing.T) {
	c, tx := newActiveController(t)

	lldp := serialize(t,
		&layers.Ethernet{
			SrcMAC:       h2.mac,
			DstMAC:       net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x0e},
			EthernetType: layers.EthernetTypeLinkLayerDiscovery,
		},
		gopacket.Payload(make([]byte, 32)),
	)
	legacy := serialize(t,
		&layers.Ethernet{
			SrcMAC:       h3.mac,
			DstMAC:       layers.EthernetBroadcast,
			EthernetType: layers.EthernetType(protocol.EtherTypeLegacyDiscovery),
		},
		gopacket.Payload(make([]byte, 32)),
	)
	packetIn(t, c, 1, protocol.NoBuffer, lldp)
	packetIn(t, c, 1, protocol.NoBuffer, legacy)
	packetIn(t, c, 1, protocol.NoBuffer, []byte{0x00, 0x01, 0x02})

	installs, packetOuts := tx.flush()
	if len(installs) != 0 || len(packetOuts) != 0 {
		t.Fatalf("unexpected commands: installs=%v, packetOuts=%v", spew.Sdump(installs), spew.Sdump(packetOuts))
	}
	counters := c.Switches()[0].Counters
	if counters.Ignored != 2 || counters.Malformed != 1 || counters.PacketIn != 3 {
		t.Fatalf("unexpected counters: %+v", counters)
	}
	if hosts, _ := c.Hosts(1); len(hosts) != 0 {
		t.Fatalf("unexpected hosts: %v", spew.Sdump(hosts))
	}
}

func TestPortDown(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h2, 2)
	learn(t, c, tx, h3, 3)

	c.OnPortDown(1, 3)
	hosts, err := c.Hosts(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Port != 2 {
		t.Fatalf("unexpected hosts: %v", spew.Sdump(hosts))
	}

	// The destination on the removed port is unknown again.
	packetIn(t, c, 2, protocol.NoBuffer, ipFrame(t, h2, h3, layers.IPProtocolTCP))
	installs, packetOuts := tx.flush()
	if len(installs) != 0 || len(packetOuts) != 1 || packetOuts[0].Actions[0] != policy.Action(policy.Output{Port: policy.PortFlood}) {
		t.Fatalf("unexpected commands: installs=%v, packetOuts=%v", spew.Sdump(installs), spew.Sdump(packetOuts))
	}
}

func TestDisconnectAndReconnect(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h3, 3)
	packetIn(t, c, 2, protocol.NoBuffer, ipFrame(t, h2, h3, layers.IPProtocolTCP))
	tx.flush()

	c.OnDisconnect(1)
	if sw, _ := c.getSwitch(1); sw.State() != StateDisconnected {
		t.Fatalf("expected=%v, got=%v", StateDisconnected, sw.State())
	}
	if hosts, _ := c.Hosts(1); len(hosts) != 0 {
		t.Fatalf("unexpected hosts: %v", spew.Sdump(hosts))
	}

	if err := c.OnConnect(1, Capabilities{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	installs, _ := tx.flush()
	if len(installs) != 2 {
		t.Fatalf("expected=2, got=%v", len(installs))
	}

	// The flow cache has been purged, so the directed path flow is installed again.
	learn(t, c, tx, h3, 3)
	packetIn(t, c, 2, protocol.NoBuffer, ipFrame(t, h2, h3, layers.IPProtocolTCP))
	installs, _ = tx.flush()
	if len(installs) != 1 || installs[0].Plan.Priority != policy.PriorityDirectedPath {
		t.Fatalf("unexpected installs: %v", spew.Sdump(installs))
	}
}

func TestFlush(t *testing.T) {
	c, tx := newActiveController(t)
	learn(t, c, tx, h2, 2)

	if err := c.Flush(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hosts, _ := c.Hosts(1); len(hosts) != 0 {
		t.Fatalf("unexpected hosts: %v", spew.Sdump(hosts))
	}
	if err := c.Flush(2); errors.Cause(err) != ErrUnknownSwitch {
		t.Fatalf("expected=%v, got=%v", ErrUnknownSwitch, err)
	}
	if _, err := c.Hosts(2); errors.Cause(err) != ErrUnknownSwitch {
		t.Fatalf("expected=%v, got=%v", ErrUnknownSwitch, err)
	}
}

func TestParseDPID(t *testing.T) {
	tests := []struct {
		s        string
		expected uint64
		valid    bool
	}{
		{"0000000000000001", 1, true},
		{"00:00:00:00:00:00:00:0a", 10, true},
		{"ff", 255, true},
		{"xyz", 0, false},
		{"", 0, false},
	}

	for _, v := range tests {
		dpid, err := ParseDPID(v.s)
		if (err == nil) != v.valid {
			t.Fatalf("%v: unexpected error: %v", v.s, err)
		}
		if dpid != v.expected {
			t.Fatalf("%v: expected=%v, got=%v", v.s, v.expected, dpid)
		}
	}
	if s := FormatDPID(10); s != "000000000000000a" {
		t.Fatalf("expected=000000000000000a, got=%v", s)
	}
}
