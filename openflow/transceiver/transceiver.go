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

// Package transceiver exchanges OpenFlow 1.3 messages with a switch over a Stream.
package transceiver

import (
	"context"
	"encoding"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/superkkt/plum/openflow"
	"github.com/superkkt/plum/openflow/of13"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("transceiver")
)

const (
	// An ECHO_REQUEST is sent after this period of silence from the switch.
	keepaliveInterval = 10 * time.Second
	// Both must be shorter than keepaliveInterval.
	readTimeout  = 1 * time.Second
	writeTimeout = 2 * time.Second
	// The connection is dropped when this many ECHO_REQUESTs are unanswered.
	maxUnansweredEcho = 3
	// Time allowed for the first HELLO.
	helloTimeout = 30 * time.Second
	// Capacity of the queue between the reader and the dispatcher.
	queueSize = 4096
)

type Writer interface {
	Write(msg encoding.BinaryMarshaler) error
	// NewXID returns a new transaction ID for an outgoing message.
	NewXID() uint32
}

// Handler receives the OpenFlow messages dispatched by a Transceiver. An error returned from a handler closes the
// connection unless it is a temporary error.
type Handler interface {
	OnHello(Writer, *of13.Hello) error
	OnError(Writer, *of13.Error) error
	OnFeaturesReply(Writer, *of13.FeaturesReply) error
	OnBarrierReply(Writer, *of13.BarrierReply) error
	OnPortStatus(Writer, *of13.PortStatus) error
	OnPacketIn(Writer, *of13.PacketIn) error
}

// Transceiver owns a switch connection. Incoming messages are read by a dedicated goroutine, which also answers
// echo requests, and are dispatched to the Handler one by one in the goroutine that calls Run.
type Transceiver struct {
	stream     *Stream
	handler    Handler
	xid        uint32
	unanswered int32
	closed     int32
}

func NewTransceiver(stream *Stream, handler Handler) *Transceiver {
	if stream == nil {
		panic("stream is nil")
	}
	if handler == nil {
		panic("handler is nil")
	}

	return &Transceiver{
		stream:  stream,
		handler: handler,
	}
}

func (r *Transceiver) NewXID() uint32 {
	return atomic.AddUint32(&r.xid, 1)
}

func isTimeout(err error) bool {
	v, ok := errors.Cause(err).(interface {
		Timeout() bool
	})
	return ok && v.Timeout()
}

func isTemporaryErr(err error) bool {
	v, ok := errors.Cause(err).(interface {
		Temporary() bool
	})
	return ok && v.Temporary()
}

// Run reads and dispatches the incoming messages until the context is canceled or the connection is closed. The
// first message must be a HELLO of version 1.3 or higher.
func (r *Transceiver) Run(ctx context.Context) error {
	defer logger.Infof("transceiver is closed: remote=%v", r.stream.RemoteAddr())
	r.stream.SetTimeout(readTimeout, writeTimeout)

	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()
	queue := r.startReader(readerCtx)

	hello, err := r.waitHello(ctx, queue)
	if err != nil {
		return errors.Wrap(err, "version negotiation failed")
	}
	if err := r.dispatch(hello); err != nil && !isTemporaryErr(err) {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("context done")
			return nil
		case packet, ok := <-queue:
			if !ok {
				logger.Info("connection closed by the reader")
				return nil
			}
			if err := r.dispatch(packet); err != nil {
				if !isTemporaryErr(err) {
					return err
				}
				logger.Errorf("failed to dispatch a message: %v", err)
			}
		}
	}
}

func (r *Transceiver) waitHello(ctx context.Context, queue <-chan []byte) ([]byte, error) {
	timer := time.NewTimer(helloTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, errors.New("context done")
	case <-timer.C:
		return nil, errors.New("no HELLO from the switch")
	case packet, ok := <-queue:
		if !ok {
			return nil, errors.New("connection closed before HELLO")
		}
		if packet[1] != of13.OFPT_HELLO {
			return nil, fmt.Errorf("missing HELLO message: type=%v", packet[1])
		}
		// A switch that speaks a newer version falls back to 1.3 after our HELLO.
		if packet[0] < openflow.OF13_VERSION {
			return nil, errors.Wrapf(openflow.ErrUnsupportedVersion, "version=%v", packet[0])
		}
		logger.Infof("negotiated OpenFlow 1.3: remote=%v", r.stream.RemoteAddr())

		return packet, nil
	}
}

// startReader returns a channel of the messages that must be dispatched. The channel is closed when the connection
// is closed, the switch stops answering echo requests, or ctx is canceled.
func (r *Transceiver) startReader(ctx context.Context) <-chan []byte {
	queue := make(chan []byte, queueSize)

	go func() {
		defer close(queue)

		lastRecv := time.Now()
		for ctx.Err() == nil {
			packet, err := r.stream.ReadMessage()
			if err != nil {
				if !isTimeout(err) {
					logger.Errorf("failed to read a message: %v", err)
					return
				}
				if time.Since(lastRecv) < keepaliveInterval {
					continue
				}
				if err := r.sendEchoRequest(); err != nil {
					logger.Errorf("keepalive failed: %v", err)
					return
				}
				lastRecv = time.Now()
				continue
			}
			lastRecv = time.Now()

			switch packet[1] {
			case of13.OFPT_ECHO_REQUEST:
				err = r.replyEcho(packet)
			case of13.OFPT_ECHO_REPLY:
				err = r.recvEchoReply(packet)
			default:
				select {
				case queue <- packet:
				default:
					logger.Errorf("dispatch queue is full: dropping a message (type=%v)", packet[1])
				}
			}
			if err != nil {
				logger.Errorf("failed to handle an echo message: %v", err)
				return
			}
		}
		logger.Info("context done")
	}()

	return queue
}

func (r *Transceiver) sendEchoRequest() error {
	if atomic.LoadInt32(&r.unanswered) >= maxUnansweredEcho {
		return errors.New("switch does not answer ECHO_REQUEST")
	}

	// The request carries the send time to measure the round trip latency.
	now, err := time.Now().GobEncode()
	if err != nil {
		return err
	}
	echo := of13.NewEchoRequest(r.NewXID())
	echo.SetData(now)
	if err := r.Write(echo); err != nil {
		return errors.Wrap(err, "failed to send ECHO_REQUEST")
	}
	atomic.AddInt32(&r.unanswered, 1)

	return nil
}

func (r *Transceiver) replyEcho(packet []byte) error {
	req := of13.NewEchoRequest(0)
	if err := req.UnmarshalBinary(packet); err != nil {
		return err
	}

	reply := of13.NewEchoReply(req.TransactionID())
	if data := req.Data(); data != nil {
		reply.SetData(data)
	}
	if err := r.Write(reply); err != nil {
		return errors.Wrap(err, "failed to send ECHO_REPLY")
	}

	return nil
}

func (r *Transceiver) recvEchoReply(packet []byte) error {
	reply := of13.NewEchoReply(0)
	if err := reply.UnmarshalBinary(packet); err != nil {
		return err
	}
	atomic.StoreInt32(&r.unanswered, 0)

	var sent time.Time
	// Some switches do not echo back our data.
	if err := sent.GobDecode(reply.Data()); err != nil {
		return nil
	}
	logger.Debugf("echo round trip: remote=%v, latency=%v", r.stream.RemoteAddr(), time.Since(sent))

	return nil
}

func (r *Transceiver) Write(msg encoding.BinaryMarshaler) error {
	packet, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = r.stream.Write(packet)

	return err
}

func decode(msg encoding.BinaryUnmarshaler, packet []byte) error {
	if err := msg.UnmarshalBinary(packet); err != nil {
		return errors.Wrapf(err, "malformed message: type=%v", packet[1])
	}
	return nil
}

func (r *Transceiver) dispatch(packet []byte) error {
	if packet[0] != openflow.OF13_VERSION && packet[1] != of13.OFPT_HELLO {
		return fmt.Errorf("unexpected OpenFlow version: negotiated=%v, packet=%v", openflow.OF13_VERSION, packet[0])
	}

	switch packet[1] {
	case of13.OFPT_HELLO:
		msg := new(of13.Hello)
		if err := decode(msg, packet); err != nil {
			return err
		}
		return r.handler.OnHello(r, msg)
	case of13.OFPT_ERROR:
		msg := new(of13.Error)
		if err := decode(msg, packet); err != nil {
			return err
		}
		return r.handler.OnError(r, msg)
	case of13.OFPT_FEATURES_REPLY:
		msg := new(of13.FeaturesReply)
		if err := decode(msg, packet); err != nil {
			return err
		}
		return r.handler.OnFeaturesReply(r, msg)
	case of13.OFPT_BARRIER_REPLY:
		msg := new(of13.BarrierReply)
		if err := decode(msg, packet); err != nil {
			return err
		}
		return r.handler.OnBarrierReply(r, msg)
	case of13.OFPT_PORT_STATUS:
		msg := new(of13.PortStatus)
		if err := decode(msg, packet); err != nil {
			return err
		}
		return r.handler.OnPortStatus(r, msg)
	case of13.OFPT_PACKET_IN:
		msg := new(of13.PacketIn)
		if err := decode(msg, packet); err != nil {
			return err
		}
		return r.handler.OnPacketIn(r, msg)
	default:
		logger.Debugf("ignoring unsupported message: type=%v", packet[1])
		return nil
	}
}

func (r *Transceiver) Close() error {
	if !atomic.CompareAndSwapInt32(&r.closed, 0, 1) {
		return nil
	}

	return r.stream.Close()
}
