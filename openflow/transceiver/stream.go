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
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/superkkt/plum/openflow"
)

// Stream reads and writes framed OpenFlow messages on a switch connection.
//
// ReadMessage should be called by only one goroutine. Write is safe for concurrent use.
type Stream struct {
	conn         io.ReadWriteCloser
	rd           *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration
	wmutex       sync.Mutex
}

type deadline interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// NewStream returns a new stream on conn. bufSize should be large enough to hold the largest message (64 KiB).
func NewStream(conn io.ReadWriteCloser, bufSize int) *Stream {
	if conn == nil {
		panic("conn is nil")
	}

	return &Stream{
		conn: conn,
		rd:   bufio.NewReaderSize(conn, bufSize),
	}
}

// SetTimeout sets I/O timeouts of the underlying socket if it implements the deadline interface.
// Zero means no timeout.
func (r *Stream) SetTimeout(read, write time.Duration) {
	r.wmutex.Lock()
	defer r.wmutex.Unlock()

	r.readTimeout = read
	r.writeTimeout = write
	logger.Debugf("set I/O timeouts: read=%v, write=%v", read, write)
}

func (r *Stream) RemoteAddr() string {
	v, ok := r.conn.(interface {
		RemoteAddr() net.Addr
	})
	if !ok {
		return "unknown"
	}

	return v.RemoteAddr().String()
}

func deadlineOf(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}

	return time.Now().Add(timeout)
}

// ReadMessage reads the next whole OpenFlow message. A timeout error leaves a partially received message in the
// buffer so that the next call can continue to read it.
func (r *Stream) ReadMessage() ([]byte, error) {
	if d, ok := r.conn.(deadline); ok {
		d.SetReadDeadline(deadlineOf(r.readTimeout))
	}

	header, err := r.rd.Peek(8) // peek ofp_header
	if err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(header[2:4]))
	if length < 8 {
		return nil, openflow.ErrInvalidPacketLength
	}
	// Wait until we have the whole message in the reader or timeout.
	if _, err := r.rd.Peek(length); err != nil {
		return nil, err
	}

	packet := make([]byte, length)
	if _, err := io.ReadFull(r.rd, packet); err != nil {
		return nil, err
	}

	return packet, nil
}

func (r *Stream) Write(p []byte) (n int, err error) {
	r.wmutex.Lock()
	defer r.wmutex.Unlock()

	if d, ok := r.conn.(deadline); ok {
		d.SetWriteDeadline(deadlineOf(r.writeTimeout))
	}

	return r.conn.Write(p)
}

func (r *Stream) Close() error {
	return r.conn.Close()
}
