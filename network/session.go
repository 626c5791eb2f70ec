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
	"context"
	"encoding"
	"net"
	"sync"

	"github.com/superkkt/plum/openflow/of13"
	"github.com/superkkt/plum/openflow/transceiver"

	"github.com/pkg/errors"
)

var (
	errNotNegotiated = errors.New("invalid command on non-negotiated session")
)

const (
	// Large enough to hold the largest OpenFlow message.
	streamBufferSize = 0x10000
)

type session struct {
	mutex       sync.Mutex
	negotiated  bool
	dpid        uint64
	active      bool
	transceiver *transceiver.Transceiver
	controller  *Controller
	pool        *sessionPool
	// A cancel function to disconnect this session.
	canceller context.CancelFunc
}

type sessionConfig struct {
	conn       net.Conn
	controller *Controller
	pool       *sessionPool
}

func checkParam(c sessionConfig) {
	if c.conn == nil {
		panic("Conn is nil")
	}
	if c.controller == nil {
		panic("Controller is nil")
	}
	if c.pool == nil {
		panic("Pool is nil")
	}
}

func newSession(c sessionConfig) *session {
	checkParam(c)

	v := new(session)
	v.controller = c.controller
	v.pool = c.pool
	v.transceiver = transceiver.NewTransceiver(transceiver.NewStream(c.conn, streamBufferSize), v)

	return v
}

func (r *session) Write(msg encoding.BinaryMarshaler) error {
	return r.transceiver.Write(msg)
}

func (r *session) NewXID() uint32 {
	return r.transceiver.NewXID()
}

func (r *session) OnHello(w transceiver.Writer, v *of13.Hello) error {
	logger.Debugf("HELLO (ver=%v) is received", v.Version())

	// Ignore duplicated HELLO messages
	if r.negotiated {
		return nil
	}
	r.negotiated = true

	if err := w.Write(of13.NewHello(w.NewXID())); err != nil {
		return errors.Wrap(err, "failed to send HELLO")
	}
	if err := w.Write(of13.NewSetConfig(w.NewXID())); err != nil {
		return errors.Wrap(err, "failed to send SET_CONFIG")
	}
	if err := w.Write(of13.NewFeaturesRequest(w.NewXID())); err != nil {
		return errors.Wrap(err, "failed to send FEATURE_REQUEST")
	}
	if err := w.Write(newRemovingAllFlows(w)); err != nil {
		return errors.Wrap(err, "failed to send FLOW_MOD to remove all flows")
	}
	// Make sure that the installed flows are removed before the proactive flows are installed.
	if err := w.Write(of13.NewBarrierRequest(w.NewXID())); err != nil {
		return errors.Wrap(err, "failed to send BARRIER_REQUEST")
	}

	return nil
}

func (r *session) OnError(w transceiver.Writer, v *of13.Error) error {
	// Is this the OVERLAP error?
	if v.Class == of13.OFPET_FLOW_MOD_FAILED && v.Code == of13.OFPFMFC_OVERLAP {
		logger.Debug("FLOW_MOD is overlapped")
		return nil
	}

	logger.Errorf("ERROR (dpid=%v, class=%v, code=%v, data=%v)", FormatDPID(r.dpid), v.Class, v.Code, v.Data)
	if !r.negotiated {
		return errNotNegotiated
	}

	return nil
}

func (r *session) OnFeaturesReply(w transceiver.Writer, v *of13.FeaturesReply) error {
	logger.Debugf("FEATURES_REPLY (DPID=%v, NumBufs=%v, NumTables=%v, Capabilities=%v)", FormatDPID(v.DPID), v.NumBuffers, v.NumTables, v.Capabilities)

	if !r.negotiated {
		return errNotNegotiated
	}
	// Only the first FEATURES_REPLY activates the switch.
	if r.active {
		logger.Debug("ignoring an additional FEATURES_REPLY")
		return nil
	}
	if v.AuxID != 0 {
		return errors.New("auxiliary connection is not supported")
	}

	prev, ok := r.pool.add(v.DPID, r)
	if !ok {
		// Disconnect the previous session. Sometimes, a switch tries to make a new
		// fresh connection even if it already has a main connection after a momentary
		// disconnection. The switch will retry after both sessions are closed.
		prev.cancel()
		return errors.Wrapf(ErrDuplicatedSwitch, "dpid=%v", FormatDPID(v.DPID))
	}
	r.dpid = v.DPID
	r.active = true

	caps := Capabilities{
		NumBuffers: v.NumBuffers,
		NumTables:  v.NumTables,
	}
	if err := r.controller.OnConnect(v.DPID, caps); err != nil {
		return err
	}

	return w.Write(of13.NewBarrierRequest(w.NewXID()))
}

func (r *session) OnBarrierReply(w transceiver.Writer, v *of13.BarrierReply) error {
	logger.Debugf("BARRIER_REPLY (dpid=%v, xid=%v)", FormatDPID(r.dpid), v.TransactionID())
	return nil
}

func (r *session) OnPortStatus(w transceiver.Writer, v *of13.PortStatus) error {
	logger.Debugf("PORT_STATUS (dpid=%v, port=%v, name=%v, reason=%v, down=%v)",
		FormatDPID(r.dpid), v.Port.Number, v.Port.Name, v.Reason, v.Port.IsDown())

	if !r.active {
		return nil
	}
	if v.Reason == of13.OFPPR_DELETE || v.Port.IsDown() {
		r.controller.OnPortDown(r.dpid, v.Port.Number)
	}

	return nil
}

func (r *session) OnPacketIn(w transceiver.Writer, v *of13.PacketIn) error {
	if !r.active {
		return errNotNegotiated
	}
	logger.Debugf("PACKET_IN is received (dpid=%v, inport=%v, bufferID=%#x, reason=%v, tableID=%v, cookie=%v)",
		FormatDPID(r.dpid), v.InPort, v.BufferID, v.Reason, v.TableID, v.Cookie)

	ev := PacketIn{
		DPID:     r.dpid,
		InPort:   v.InPort,
		BufferID: v.BufferID,
		Data:     v.Data,
	}
	if err := r.controller.OnPacketIn(ev); err != nil {
		// A failure on a single packet does not affect the other packets.
		logger.Errorf("failed to handle PACKET_IN: dpid=%v, err=%v", FormatDPID(r.dpid), err)
	}

	return nil
}

func (r *session) cancel() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.canceller != nil {
		r.canceller()
	}
}

func (r *session) Run(ctx context.Context) {
	sessionCtx, canceller := context.WithCancel(ctx)
	defer canceller()
	// This canceller will be used to disconnect this session when it is necessary.
	r.mutex.Lock()
	r.canceller = canceller
	r.mutex.Unlock()

	if err := r.transceiver.Run(sessionCtx); err != nil {
		logger.Errorf("openflow transceiver is unexpectedly closed: %v", err)
	}
	r.transceiver.Close()

	if r.active {
		logger.Infof("disconnected switch (DPID=%v)", FormatDPID(r.dpid))
		r.pool.remove(r.dpid, r)
		r.controller.OnDisconnect(r.dpid)
	}
}
