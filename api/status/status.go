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

// Package status serves the read-mostly view of the controller state over the REST API.
package status

import (
	"context"
	"net/http"
	"time"

	"github.com/superkkt/plum"
	"github.com/superkkt/plum/api"
	"github.com/superkkt/plum/learning"
	"github.com/superkkt/plum/network"
	"github.com/superkkt/plum/policy"

	"github.com/ant0ine/go-json-rest/rest"
	"github.com/davecgh/go-spew/spew"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("status")
)

type Controller interface {
	Switches() []network.SwitchStatus
	Hosts(dpid uint64) ([]learning.Entry, error)
	Flush(dpid uint64) error
	Rules() []policy.RuleInfo
}

type API struct {
	api.Server
	// Version reported by the status route. plum.Version is used if it is empty.
	Version    string
	Controller Controller
	startedAt  time.Time
}

type host struct {
	MAC       string    `json:"mac"`
	Port      uint32    `json:"port"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *API) routes() []*rest.Route {
	return []*rest.Route{
		rest.Get("/api/v1/status", r.status),
		rest.Get("/api/v1/switch", r.listSwitch),
		rest.Get("/api/v1/switch/:dpid/host", r.listHost),
		rest.Post("/api/v1/switch/:dpid/flush", r.flush),
		rest.Get("/api/v1/rule", r.listRule),
	}
}

// Handler returns an HTTP handler for the status API.
func (r *API) Handler() (http.Handler, error) {
	if r.Controller == nil {
		panic("nil controller")
	}
	if r.startedAt.IsZero() {
		r.startedAt = time.Now()
	}

	return r.Server.Handler(r.routes()...)
}

func (r *API) Serve(ctx context.Context) error {
	if r.Controller == nil {
		panic("nil controller")
	}
	r.startedAt = time.Now()

	return r.Server.Serve(ctx, r.routes()...)
}

func (r *API) status(w rest.ResponseWriter, req *rest.Request) {
	switches := r.Controller.Switches()
	active := 0
	for _, v := range switches {
		if v.State == network.StateActive.String() {
			active++
		}
	}

	version := r.Version
	if len(version) == 0 {
		version = plum.Version
	}

	w.WriteJson(api.Response{
		Status: api.StatusOkay,
		Data: struct {
			Version        string `json:"version"`
			Uptime         string `json:"uptime"`
			NumSwitches    int    `json:"num_switches"`
			ActiveSwitches int    `json:"active_switches"`
		}{
			Version:        version,
			Uptime:         time.Since(r.startedAt).Truncate(time.Second).String(),
			NumSwitches:    len(switches),
			ActiveSwitches: active,
		},
	})
}

func (r *API) listSwitch(w rest.ResponseWriter, req *rest.Request) {
	w.WriteJson(api.Response{Status: api.StatusOkay, Data: r.Controller.Switches()})
}

func parseDPID(w rest.ResponseWriter, req *rest.Request) (dpid uint64, ok bool) {
	dpid, err := network.ParseDPID(req.PathParam("dpid"))
	if err != nil {
		logger.Infof("invalid DPID: %v", err)
		w.WriteJson(api.Response{Status: api.StatusInvalidParameter, Message: err.Error()})
		return 0, false
	}

	return dpid, true
}

func (r *API) listHost(w rest.ResponseWriter, req *rest.Request) {
	dpid, ok := parseDPID(w, req)
	if !ok {
		return
	}

	hosts, err := r.Controller.Hosts(dpid)
	if err != nil {
		writeError(w, err)
		return
	}
	logger.Debugf("hosts of %v: %v", network.FormatDPID(dpid), spew.Sdump(hosts))

	result := make([]host, len(hosts))
	for i, v := range hosts {
		result[i] = host{MAC: v.MAC.String(), Port: v.Port, Timestamp: v.Timestamp}
	}
	w.WriteJson(api.Response{Status: api.StatusOkay, Data: result})
}

func (r *API) flush(w rest.ResponseWriter, req *rest.Request) {
	dpid, ok := parseDPID(w, req)
	if !ok {
		return
	}

	if err := r.Controller.Flush(dpid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteJson(api.Response{Status: api.StatusOkay})
}

func (r *API) listRule(w rest.ResponseWriter, req *rest.Request) {
	w.WriteJson(api.Response{Status: api.StatusOkay, Data: r.Controller.Rules()})
}

func writeError(w rest.ResponseWriter, err error) {
	if errors.Cause(err) == network.ErrUnknownSwitch {
		w.WriteJson(api.Response{Status: api.StatusNotFound, Message: err.Error()})
		return
	}

	logger.Errorf("failed to query the controller: %v", err)
	w.WriteJson(api.Response{Status: api.StatusInternalServerError, Message: err.Error()})
}
