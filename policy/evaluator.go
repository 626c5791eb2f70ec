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

// Package policy decides what to do with a packet received from a switch and which flow entry makes the switch
// handle the following packets by itself.
package policy

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/superkkt/plum/protocol"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

var (
	logger = logging.MustGetLogger("policy")
)

const (
	PriorityTableMiss    uint16 = 0
	PriorityLearning     uint16 = 10
	PriorityDirectedPath uint16 = 50
	PriorityRewrite      uint16 = 60
	PriorityIsolation    uint16 = 100
)

const (
	RuleTableMiss    = "table-miss"
	RuleLearning     = "learning"
	RuleDirectedPath = "directed-path"
	RuleRewrite      = "rewrite"
	RuleIsolation    = "isolation"
)

// DefaultIdleTimeout is the idle timeout in seconds of the reactive flows.
const DefaultIdleTimeout = 60

var (
	ErrDuplicatedPriority = errors.New("duplicated rule priority")
)

// destination is the learned location of a packet's destination.
type destination struct {
	port  uint32
	known bool
}

type rule struct {
	name        string
	priority    uint16
	description string
	// matches returns whether this rule handles the packet.
	matches func(p *protocol.Packet, dst destination) bool
	// decide should be called only if matches returns true.
	decide func(p *protocol.Packet, dst destination) (Disposition, *FlowPlan)
}

// RuleInfo describes a policy rule.
type RuleInfo struct {
	Name        string `json:"name"`
	Priority    uint16 `json:"priority"`
	Description string `json:"description"`
}

// Evaluator evaluates packets against an ordered rule table built from a HostRegistry. It has no mutable state
// and is safe for concurrent use.
type Evaluator struct {
	registry    HostRegistry
	idleTimeout uint16
	// Sorted by priority in descending order.
	rules []rule
}

// NewEvaluator returns an evaluator for reg. idleTimeout is the idle timeout in seconds of the flows installed in
// response to packets.
func NewEvaluator(reg HostRegistry, idleTimeout uint16) (*Evaluator, error) {
	if err := reg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid host registry")
	}

	v := &Evaluator{
		registry:    reg,
		idleTimeout: idleTimeout,
	}
	rules := v.ruleTable()
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].priority > rules[j].priority })
	for i := 1; i < len(rules); i++ {
		if rules[i].priority == rules[i-1].priority {
			return nil, errors.Wrapf(ErrDuplicatedPriority, "%v and %v", rules[i-1].name, rules[i].name)
		}
	}
	v.rules = rules
	logger.Debugf("policy rules: %v", v.Rules())

	return v, nil
}

// ruleTable returns the rules whose host roles are configured, plus the default learning rule.
func (r *Evaluator) ruleTable() []rule {
	rules := make([]rule, 0, 4)
	if r.registry.Isolated != nil {
		rules = append(rules, r.isolationRule())
	}
	if r.registry.Rewrite != nil {
		rules = append(rules, r.rewriteRule())
	}
	if r.registry.PathSrc != nil && r.registry.PathDst != nil {
		rules = append(rules, r.directedPathRule())
	}

	return append(rules, r.learningRule())
}

func (r *Evaluator) isolationPlan() *FlowPlan {
	return &FlowPlan{
		Rule:     RuleIsolation,
		Priority: PriorityIsolation,
		Match: Match{
			EtherType:  protocol.EtherTypeIPv4,
			IPProtocol: protocol.IPProtocolICMP,
			SrcIP:      r.registry.Isolated.IP.To4(),
		},
		// Permanent flow that has no actions to drop the packets.
		IdleTimeout: 0,
		HardTimeout: 0,
		Proactive:   true,
	}
}

func (r *Evaluator) isolationRule() rule {
	host := r.registry.Isolated

	return rule{
		name:        RuleIsolation,
		priority:    PriorityIsolation,
		description: fmt.Sprintf("drop ICMP packets from %v", host.IP),
		matches: func(p *protocol.Packet, dst destination) bool {
			proto, ok := p.IPProtocol()
			return ok && proto == protocol.IPProtocolICMP && p.Network.SrcIP.Equal(host.IP)
		},
		decide: func(p *protocol.Packet, dst destination) (Disposition, *FlowPlan) {
			// The permanent flow has been installed when the switch connected. We also drop here for the
			// packets that reach the controller before the flow takes effect.
			return Drop{}, r.isolationPlan()
		},
	}
}

func (r *Evaluator) rewriteRule() rule {
	host := r.registry.Rewrite
	newMAC := r.registry.RewriteMAC

	return rule{
		name:        RuleRewrite,
		priority:    PriorityRewrite,
		description: fmt.Sprintf("replace the source MAC address of IPv4 packets from %v with %v", host.MAC, newMAC),
		matches: func(p *protocol.Packet, dst destination) bool {
			// Only IPv4 packets. ARP is never rewritten.
			return dst.known && p.IsIPv4() && bytes.Equal(p.SrcMAC, host.MAC)
		},
		decide: func(p *protocol.Packet, dst destination) (Disposition, *FlowPlan) {
			return ModifyAndForward{NewSrcMAC: newMAC, OutPort: dst.port}, &FlowPlan{
				Rule:     RuleRewrite,
				Priority: PriorityRewrite,
				Match: Match{
					InPort:    p.InPort,
					EtherType: protocol.EtherTypeIPv4,
					SrcMAC:    p.SrcMAC,
					DstMAC:    p.DstMAC,
				},
				Actions:     []Action{SetSrcMAC{MAC: newMAC}, Output{Port: dst.port}},
				IdleTimeout: r.idleTimeout,
			}
		},
	}
}

func (r *Evaluator) directedPathRule() rule {
	src, dst := r.registry.PathSrc, r.registry.PathDst

	return rule{
		name:        RuleDirectedPath,
		priority:    PriorityDirectedPath,
		description: fmt.Sprintf("dedicated flow for TCP packets from %v to %v", src.IP, dst.IP),
		matches: func(p *protocol.Packet, d destination) bool {
			proto, ok := p.IPProtocol()
			if !ok || proto != protocol.IPProtocolTCP || !d.known {
				return false
			}
			return p.Network.SrcIP.Equal(src.IP) && p.Network.DstIP.Equal(dst.IP)
		},
		decide: func(p *protocol.Packet, d destination) (Disposition, *FlowPlan) {
			return Forward{OutPort: d.port}, &FlowPlan{
				Rule:     RuleDirectedPath,
				Priority: PriorityDirectedPath,
				Match: Match{
					EtherType:  protocol.EtherTypeIPv4,
					IPProtocol: protocol.IPProtocolTCP,
					SrcIP:      src.IP.To4(),
					DstIP:      dst.IP.To4(),
				},
				Actions:     []Action{Output{Port: d.port}},
				IdleTimeout: r.idleTimeout,
			}
		},
	}
}

func (r *Evaluator) learningRule() rule {
	return rule{
		name:        RuleLearning,
		priority:    PriorityLearning,
		description: "forward packets to the learned port of the destination",
		matches: func(p *protocol.Packet, dst destination) bool {
			return dst.known
		},
		decide: func(p *protocol.Packet, dst destination) (Disposition, *FlowPlan) {
			return Forward{OutPort: dst.port}, &FlowPlan{
				Rule:     RuleLearning,
				Priority: PriorityLearning,
				Match: Match{
					InPort: p.InPort,
					DstMAC: p.DstMAC,
				},
				Actions:     []Action{Output{Port: dst.port}},
				IdleTimeout: r.idleTimeout,
			}
		},
	}
}

// Evaluate decides the disposition of p. outPort is the learned port of p's destination, and known is false if
// the destination has not been learned yet. The returned plan is nil if no flow should be installed, which is
// always the case for Flood.
func (r *Evaluator) Evaluate(p *protocol.Packet, outPort uint32, known bool) (Disposition, *FlowPlan) {
	if p == nil {
		panic("nil packet")
	}

	dst := destination{port: outPort, known: known}
	// The learning table never has group addresses, but the caller may pass a stale port for them.
	if p.Multicast {
		dst = destination{}
	}

	for _, v := range r.rules {
		if !v.matches(p, dst) {
			continue
		}
		d, plan := v.decide(p, dst)
		logger.Debugf("rule %v matched: packet={%v}, disposition=%v", v.name, p, d)
		return d, plan
	}

	return Flood{}, nil
}

func (r *Evaluator) tableMissPlan() FlowPlan {
	return FlowPlan{
		Rule:      RuleTableMiss,
		Priority:  PriorityTableMiss,
		Match:     Match{},
		Actions:   []Action{Output{Port: PortController}},
		Proactive: true,
	}
}

// ProactivePlans returns the flows that should be installed when a switch connects: the table-miss flow and the
// isolation flow if an isolated host is configured.
func (r *Evaluator) ProactivePlans() []FlowPlan {
	plans := []FlowPlan{r.tableMissPlan()}
	if r.registry.Isolated != nil {
		plans = append(plans, *r.isolationPlan())
	}

	return plans
}

// Rules returns the rule table in evaluation order, followed by the table-miss flow.
func (r *Evaluator) Rules() []RuleInfo {
	result := make([]RuleInfo, 0, len(r.rules)+1)
	for _, v := range r.rules {
		result = append(result, RuleInfo{Name: v.name, Priority: v.priority, Description: v.description})
	}
	result = append(result, RuleInfo{
		Name:        RuleTableMiss,
		Priority:    PriorityTableMiss,
		Description: "send unmatched packets to the controller",
	})

	return result
}

func (r *Evaluator) IdleTimeout() uint16 {
	return r.idleTimeout
}

func (r *Evaluator) Registry() HostRegistry {
	return r.registry
}
