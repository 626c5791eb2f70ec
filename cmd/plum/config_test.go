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

package main

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/superkkt/plum/policy"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
)

func readConfig(t *testing.T, yaml string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yaml)); err != nil {
		t.Fatalf("failed to read the config: %v", err)
	}

	return v
}

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

const sampleConfig = `
default:
  port: 6653
  log_level: debug
  log_output: stderr
rest:
  port: 7070
policy:
  idle_timeout: 30
  flow_cache_expiration: 3s
hosts:
  isolated:
    mac: "00:00:00:00:00:01"
    ip: 10.0.0.1
  rewrite:
    mac: "00:00:00:00:00:04"
    ip: 10.0.0.4
    new_mac: "00:00:00:00:00:44"
  path_src:
    mac: "00:00:00:00:00:02"
    ip: 10.0.0.2
  path_dst:
    mac: "00:00:00:00:00:03"
    ip: 10.0.0.3
`

func TestParseHostRegistry(t *testing.T) {
	v := readConfig(t, sampleConfig)
	if err := validateConfig(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if timeout := v.GetDuration("policy.flow_cache_expiration"); timeout != 3*time.Second {
		t.Fatalf("expected=%v, got=%v", 3*time.Second, timeout)
	}

	reg, err := parseHostRegistry(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := policy.HostRegistry{
		Isolated:   &policy.Host{MAC: mustMAC("00:00:00:00:00:01"), IP: net.IPv4(10, 0, 0, 1).To4()},
		Rewrite:    &policy.Host{MAC: mustMAC("00:00:00:00:00:04"), IP: net.IPv4(10, 0, 0, 4).To4()},
		RewriteMAC: mustMAC("00:00:00:00:00:44"),
		PathSrc:    &policy.Host{MAC: mustMAC("00:00:00:00:00:02"), IP: net.IPv4(10, 0, 0, 2).To4()},
		PathDst:    &policy.Host{MAC: mustMAC("00:00:00:00:00:03"), IP: net.IPv4(10, 0, 0, 3).To4()},
	}
	if diff := cmp.Diff(expected, reg); diff != "" {
		t.Fatalf("unexpected registry (-expected +got):\n%v\n%v", diff, spew.Sdump(reg))
	}
}

func TestParseHostRegistryPartial(t *testing.T) {
	v := readConfig(t, `
hosts:
  isolated:
    ip: 10.0.0.1
`)
	if err := validateConfig(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if port := v.GetInt("default.port"); port != defaultPort {
		t.Fatalf("expected=%v, got=%v", defaultPort, port)
	}

	reg, err := parseHostRegistry(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Isolated == nil || !reg.Isolated.IP.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Fatalf("unexpected isolated host: %v", reg.Isolated)
	}
	if reg.Rewrite != nil || reg.PathSrc != nil || reg.PathDst != nil {
		t.Fatalf("unexpected hosts: %v", reg)
	}
}

func TestParseHostRegistryInvalid(t *testing.T) {
	configs := []string{
		// Invalid IP address.
		`
hosts:
  isolated:
    ip: 10.0.0.256
`,
		// Missing replacement MAC address.
		`
hosts:
  rewrite:
    mac: "00:00:00:00:00:04"
`,
		// Directed path without its destination.
		`
hosts:
  path_src:
    ip: 10.0.0.2
`,
	}

	for i, c := range configs {
		if _, err := parseHostRegistry(readConfig(t, c)); err == nil {
			t.Fatalf("#%v: expected an error", i)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	configs := []string{
		"default:\n  port: 70000\n",
		"default:\n  log_output: file\n",
		"rest:\n  tls: true\n",
		"policy:\n  idle_timeout: 0\n",
	}

	for i, c := range configs {
		if err := validateConfig(readConfig(t, c)); err == nil {
			t.Fatalf("#%v: expected an error", i)
		}
	}
}
