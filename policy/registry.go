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

package policy

import (
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// Host is the identity of a named host.
type Host struct {
	MAC net.HardwareAddr
	IP  net.IP
}

func (r *Host) String() string {
	if r == nil {
		return "none"
	}

	return fmt.Sprintf("%v/%v", r.MAC, r.IP)
}

// HostRegistry binds the host roles of the policy to host identities. A nil role is not configured, and the
// rule keyed on it never matches. A HostRegistry must not be modified after it is passed to NewEvaluator.
type HostRegistry struct {
	// ICMP packets sent by Isolated are dropped.
	Isolated *Host
	// Source MAC address of IPv4 packets sent by Rewrite is replaced with RewriteMAC.
	Rewrite    *Host
	RewriteMAC net.HardwareAddr
	// TCP packets from PathSrc to PathDst get a dedicated flow keyed on their IP addresses.
	PathSrc *Host
	PathDst *Host
}

func validMAC(mac net.HardwareAddr) bool {
	return len(mac) == 6 && mac[0]&0x01 == 0
}

func validIP(ip net.IP) bool {
	return ip.To4() != nil && !ip.IsUnspecified()
}

func (r HostRegistry) Validate() error {
	if r.Isolated != nil && !validIP(r.Isolated.IP) {
		return errors.New("isolated host: invalid IPv4 address")
	}

	if r.Rewrite != nil {
		if !validMAC(r.Rewrite.MAC) {
			return errors.New("rewrite host: invalid MAC address")
		}
		if !validMAC(r.RewriteMAC) {
			return errors.New("rewrite host: invalid replacement MAC address")
		}
	}

	if (r.PathSrc == nil) != (r.PathDst == nil) {
		return errors.New("directed path: both of the source and destination hosts should be configured")
	}
	if r.PathSrc != nil {
		if !validIP(r.PathSrc.IP) {
			return errors.New("directed path: invalid source IPv4 address")
		}
		if !validIP(r.PathDst.IP) {
			return errors.New("directed path: invalid destination IPv4 address")
		}
		if r.PathSrc.IP.Equal(r.PathDst.IP) {
			return errors.New("directed path: source and destination hosts are same")
		}
	}

	return nil
}

func (r HostRegistry) String() string {
	return fmt.Sprintf("Isolated=%v, Rewrite=%v (NewMAC=%v), PathSrc=%v, PathDst=%v",
		r.Isolated, r.Rewrite, r.RewriteMAC, r.PathSrc, r.PathDst)
}
