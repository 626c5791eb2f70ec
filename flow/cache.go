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

package flow

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	flowCacheSize = 8192
)

// flowCache remembers the flows recently sent to switches so that the same flow is not sent again while the
// switch is installing it.
type flowCache struct {
	cache      *lru.Cache
	expiration time.Duration
}

func newFlowCache(expiration time.Duration) *flowCache {
	c, err := lru.New(flowCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to init a LRU flow cache: %v", err))
	}

	return &flowCache{
		cache:      c,
		expiration: expiration,
	}
}

func dpidPrefix(dpid uint64) string {
	return fmt.Sprintf("%016x/", dpid)
}

func (r *flowCache) key(dpid uint64, flowKey string) string {
	return dpidPrefix(dpid) + flowKey
}

func (r *flowCache) Add(dpid uint64, flowKey string) {
	key := r.key(dpid, flowKey)
	t := time.Now()
	// Update if the key already exists.
	r.cache.Add(key, t)
	logger.Debugf("added a new flow cache: key=%v, timestamp=%v", key, t)
}

func (r *flowCache) InProgress(dpid uint64, flowKey string) bool {
	key := r.key(dpid, flowKey)
	v, ok := r.cache.Get(key)
	if !ok {
		return false
	}
	timestamp := v.(time.Time)

	// Timeout?
	if time.Since(timestamp) > r.expiration {
		r.cache.Remove(key)
		logger.Debugf("removed the timed-out flow cache: key=%v", key)
		return false
	}

	return true
}

// Remove removes the flow caches of a switch.
func (r *flowCache) Remove(dpid uint64) int {
	prefix := dpidPrefix(dpid)
	count := 0
	for _, k := range r.cache.Keys() {
		if strings.HasPrefix(k.(string), prefix) {
			r.cache.Remove(k)
			count++
		}
	}
	logger.Debugf("removed %v flow caches of the switch %016x", count, dpid)

	return count
}

func (r *flowCache) RemoveAll() {
	r.cache.Purge()
	logger.Debug("removed all the flow caches")
}

func (r *flowCache) Len() int {
	return r.cache.Len()
}
