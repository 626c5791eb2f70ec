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

package status

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/superkkt/plum"
	"github.com/superkkt/plum/api"
	"github.com/superkkt/plum/learning"
	"github.com/superkkt/plum/network"
	"github.com/superkkt/plum/policy"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type mockController struct {
	switches []network.SwitchStatus
	hosts    map[uint64][]learning.Entry
	flushed  []uint64
}

func (r *mockController) Switches() []network.SwitchStatus {
	return r.switches
}

func (r *mockController) Hosts(dpid uint64) ([]learning.Entry, error) {
	v, ok := r.hosts[dpid]
	if !ok {
		return nil, errors.Wrap(network.ErrUnknownSwitch, "mock")
	}
	return v, nil
}

func (r *mockController) Flush(dpid uint64) error {
	if _, ok := r.hosts[dpid]; !ok {
		return errors.Wrap(network.ErrUnknownSwitch, "mock")
	}
	r.flushed = append(r.flushed, dpid)
	return nil
}

func (r *mockController) Rules() []policy.RuleInfo {
	return []policy.RuleInfo{
		{Name: "isolation", Priority: 100},
		{Name: "learning", Priority: 10},
	}
}

type response struct {
	Status  api.Status      `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, c Controller) *httptest.Server {
	a := &API{Version: "test", Controller: c}
	handler, err := a.Handler()
	if err != nil {
		t.Fatalf("failed to make a handler: %v", err)
	}

	return httptest.NewServer(handler)
}

func request(t *testing.T, method, url string) response {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected HTTP status: %v", resp.StatusCode)
	}
	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Fatalf("missing CORS header: %v", v)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode the response: %v", err)
	}

	return result
}

func newMockController() *mockController {
	mac, _ := net.ParseMAC("00:00:00:00:00:01")
	return &mockController{
		switches: []network.SwitchStatus{
			{DPID: network.FormatDPID(1), State: network.StateActive.String(), Hosts: 1},
			{DPID: network.FormatDPID(2), State: network.StateDisconnected.String()},
		},
		hosts: map[uint64][]learning.Entry{
			1: {{MAC: mac, Port: 3, Timestamp: time.Unix(0, 0).UTC()}},
		},
	}
}

func TestStatus(t *testing.T) {
	server := newTestServer(t, newMockController())
	defer server.Close()

	resp := request(t, "GET", server.URL+"/api/v1/status")
	if resp.Status != api.StatusOkay {
		t.Fatalf("expected=%v, actual=%v", api.StatusOkay, resp.Status)
	}

	var data struct {
		Version        string `json:"version"`
		NumSwitches    int    `json:"num_switches"`
		ActiveSwitches int    `json:"active_switches"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Version != "test" || data.NumSwitches != 2 || data.ActiveSwitches != 1 {
		t.Fatalf("unexpected status: %+v", data)
	}
}

func TestStatusDefaultVersion(t *testing.T) {
	a := &API{Controller: newMockController()}
	handler, err := a.Handler()
	if err != nil {
		t.Fatalf("failed to make a handler: %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	resp := request(t, "GET", server.URL+"/api/v1/status")
	var data struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Version != plum.Version {
		t.Fatalf("expected=%v, got=%v", plum.Version, data.Version)
	}
}

func TestListSwitch(t *testing.T) {
	c := newMockController()
	server := newTestServer(t, c)
	defer server.Close()

	resp := request(t, "GET", server.URL+"/api/v1/switch")
	var switches []network.SwitchStatus
	if err := json.Unmarshal(resp.Data, &switches); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c.switches, switches); diff != "" {
		t.Fatalf("unexpected switches (-expected +actual):\n%v", diff)
	}
}

func TestListHost(t *testing.T) {
	server := newTestServer(t, newMockController())
	defer server.Close()

	resp := request(t, "GET", server.URL+"/api/v1/switch/00:00:00:00:00:00:00:01/host")
	if resp.Status != api.StatusOkay {
		t.Fatalf("expected=%v, actual=%v", api.StatusOkay, resp.Status)
	}
	var hosts []host
	if err := json.Unmarshal(resp.Data, &hosts); err != nil {
		t.Fatal(err)
	}
	expected := []host{{MAC: "00:00:00:00:00:01", Port: 3, Timestamp: time.Unix(0, 0).UTC()}}
	if diff := cmp.Diff(expected, hosts); diff != "" {
		t.Fatalf("unexpected hosts (-expected +actual):\n%v", diff)
	}

	resp = request(t, "GET", server.URL+"/api/v1/switch/0000000000000009/host")
	if resp.Status != api.StatusNotFound {
		t.Fatalf("expected=%v, actual=%v", api.StatusNotFound, resp.Status)
	}

	resp = request(t, "GET", server.URL+"/api/v1/switch/xyz/host")
	if resp.Status != api.StatusInvalidParameter {
		t.Fatalf("expected=%v, actual=%v", api.StatusInvalidParameter, resp.Status)
	}
}

func TestFlush(t *testing.T) {
	c := newMockController()
	server := newTestServer(t, c)
	defer server.Close()

	resp := request(t, "POST", server.URL+"/api/v1/switch/1/flush")
	if resp.Status != api.StatusOkay {
		t.Fatalf("expected=%v, actual=%v", api.StatusOkay, resp.Status)
	}
	if diff := cmp.Diff([]uint64{1}, c.flushed); diff != "" {
		t.Fatalf("unexpected flushed switches (-expected +actual):\n%v", diff)
	}

	resp = request(t, "POST", server.URL+"/api/v1/switch/2/flush")
	if resp.Status != api.StatusNotFound {
		t.Fatalf("expected=%v, actual=%v", api.StatusNotFound, resp.Status)
	}
}

func TestListRule(t *testing.T) {
	server := newTestServer(t, newMockController())
	defer server.Close()

	resp := request(t, "GET", server.URL+"/api/v1/rule")
	if !strings.Contains(string(resp.Data), `"isolation"`) {
		t.Fatalf("missing isolation rule: %s", resp.Data)
	}
}
