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
	"fmt"
	"net"
	"time"

	"github.com/superkkt/plum/policy"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	defaultPort            = 6653
	defaultRESTPort        = 7070
	defaultCacheExpiration = 5 * time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("default.port", defaultPort)
	v.SetDefault("default.log_level", "info")
	v.SetDefault("default.log_output", "syslog")
	v.SetDefault("rest.port", defaultRESTPort)
	v.SetDefault("policy.idle_timeout", policy.DefaultIdleTimeout)
	v.SetDefault("policy.flow_cache_expiration", defaultCacheExpiration)
}

func validateConfig(v *viper.Viper) error {
	if port := v.GetInt("default.port"); port <= 0 || port > 0xFFFF {
		return errors.New("invalid default.port")
	}
	if len(v.GetString("default.log_level")) == 0 {
		return errors.New("invalid default.log_level")
	}
	if output := v.GetString("default.log_output"); output != "syslog" && output != "stderr" {
		return fmt.Errorf("invalid default.log_output: %v", output)
	}
	if port := v.GetInt("rest.port"); port < 0 || port > 0xFFFF {
		return errors.New("invalid rest.port")
	}
	if v.GetBool("rest.tls") {
		if len(v.GetString("rest.cert_file")) == 0 || len(v.GetString("rest.key_file")) == 0 {
			return errors.New("rest.tls requires both of rest.cert_file and rest.key_file")
		}
	}
	if timeout := v.GetInt("policy.idle_timeout"); timeout <= 0 || timeout > 0xFFFF {
		return errors.New("invalid policy.idle_timeout")
	}
	if v.GetDuration("policy.flow_cache_expiration") <= 0 {
		return errors.New("invalid policy.flow_cache_expiration")
	}

	return nil
}

func parseHost(v *viper.Viper, key string) (*policy.Host, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	host := new(policy.Host)
	if s := v.GetString(key + ".mac"); len(s) > 0 {
		mac, err := net.ParseMAC(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %v.mac", key)
		}
		host.MAC = mac
	}
	if s := v.GetString(key + ".ip"); len(s) > 0 {
		ip := net.ParseIP(s)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid %v.ip: %v", key, s)
		}
		host.IP = ip.To4()
	}

	return host, nil
}

// parseHostRegistry reads the hosts section. A host role that is not configured is left nil.
func parseHostRegistry(v *viper.Viper) (policy.HostRegistry, error) {
	var err error
	reg := policy.HostRegistry{}

	if reg.Isolated, err = parseHost(v, "hosts.isolated"); err != nil {
		return policy.HostRegistry{}, err
	}
	if reg.Rewrite, err = parseHost(v, "hosts.rewrite"); err != nil {
		return policy.HostRegistry{}, err
	}
	if reg.Rewrite != nil {
		mac, err := net.ParseMAC(v.GetString("hosts.rewrite.new_mac"))
		if err != nil {
			return policy.HostRegistry{}, errors.Wrap(err, "invalid hosts.rewrite.new_mac")
		}
		reg.RewriteMAC = mac
	}
	if reg.PathSrc, err = parseHost(v, "hosts.path_src"); err != nil {
		return policy.HostRegistry{}, err
	}
	if reg.PathDst, err = parseHost(v, "hosts.path_dst"); err != nil {
		return policy.HostRegistry{}, err
	}

	if err := reg.Validate(); err != nil {
		return policy.HostRegistry{}, err
	}

	return reg, nil
}
