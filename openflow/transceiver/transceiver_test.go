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

package transceiver

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/superkkt/plum/openflow/of13"
)

type mockHandler struct {
	hello    chan *of13.Hello
	packetIn chan *of13.PacketIn
}

func newMockHandler() *mockHandler {
	return &mockHandler{
		hello:    make(chan *of13.Hello, 1),
		packetIn: make(chan *of13.PacketIn, 1),
	}
}

func (r *mockHandler) OnHello(w Writer, v *of13.Hello) error {
	r.hello <- v
	return nil
}

func (r *mockHandler) OnError(w Writer, v *of13.Error) error {
	return nil
}

func (r *mockHandler) OnFeaturesReply(w Writer, v *of13.FeaturesReply) error {
	return nil
}

func (r *mockHandler) OnBarrierReply(w Writer, v *of13.BarrierReply) error {
	return nil
}

func (r *mockHandler) OnPortStatus(w Writer, v *of13.PortStatus) error {
	return nil
}

func (r *mockHandler) OnPacketIn(w Writer, v *of13.PacketIn) error {
	r.packetIn <- v
	return nil
}

func readMessage(t *testing.T, conn net.Conn) []byte {
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	header := make([]byte, 8)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Fatalf("failed to read a message header: %v", err)
	}
	v := make([]byte, binary.BigEndian.Uint16(header[2:4]))
	copy(v, header)
	if _, err := io.ReadFull(conn, v[8:]); err != nil {
		t.Fatalf("failed to read a message body: %v", err)
	}

	return v
}

func runTransceiver(t *testing.T, h Handler) (conn net.Conn, cancel context.CancelFunc, done <-chan error) {
	client, server := net.Pipe()
	tr := NewTransceiver(NewStream(server, 0x10000), h)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan error, 1)
	go func() {
		c <- tr.Run(ctx)
		tr.Close()
	}()

	return client, cancel, c
}

func TestTransceiverEcho(t *testing.T) {
	h := newMockHandler()
	conn, cancel, done := runTransceiver(t, h)
	defer conn.Close()

	conn.Write(message(of13.OFPT_HELLO, 1, nil))
	select {
	case v := <-h.hello:
		if v.TransactionID() != 1 {
			t.Fatalf("expected=1, got=%v", v.TransactionID())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout for HELLO")
	}

	conn.Write(message(of13.OFPT_ECHO_REQUEST, 5, []byte("ping")))
	reply := readMessage(t, conn)
	if reply[1] != of13.OFPT_ECHO_REPLY {
		t.Fatalf("expected=%v, got=%v", of13.OFPT_ECHO_REPLY, reply[1])
	}
	if xid := binary.BigEndian.Uint32(reply[4:8]); xid != 5 {
		t.Fatalf("expected=5, got=%v", xid)
	}
	if string(reply[8:]) != "ping" {
		t.Fatalf("expected=ping, got=%v", string(reply[8:]))
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("transceiver is not terminated")
	}
}

func TestTransceiverDispatch(t *testing.T) {
	h := newMockHandler()
	conn, cancel, _ := runTransceiver(t, h)
	defer conn.Close()
	defer cancel()

	conn.Write(message(of13.OFPT_HELLO, 1, nil))
	<-h.hello

	// PACKET_IN with a match that has in_port=3 and a 4 bytes frame.
	payload := make([]byte, 16)
	binary.BigEndian.PutUint32(payload[0:4], 0x10) // buffer ID
	payload = append(payload, 0x00, 0x01, 0x00, 0x0c, 0x80, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00)
	payload = append(payload, 0x00, 0x00, 0xde, 0xad, 0xbe, 0xef)
	conn.Write(message(of13.OFPT_PACKET_IN, 2, payload))

	select {
	case v := <-h.packetIn:
		if v.InPort != 3 || v.BufferID != 0x10 || len(v.Data) != 4 {
			t.Fatalf("unexpected PACKET_IN: InPort=%v, BufferID=%v, Data=%v", v.InPort, v.BufferID, v.Data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout for PACKET_IN")
	}
}

func TestTransceiverMissingHello(t *testing.T) {
	conn, cancel, done := runTransceiver(t, newMockHandler())
	defer conn.Close()
	defer cancel()

	conn.Write(message(of13.OFPT_FEATURES_REPLY, 1, make([]byte, 24)))
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error for a missing HELLO")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("transceiver is not terminated")
	}
}
