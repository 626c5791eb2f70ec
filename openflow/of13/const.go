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

package of13

const (
	/* Immutable messages. */
	OFPT_HELLO        = iota /* Symmetric message */
	OFPT_ERROR               /* Symmetric message */
	OFPT_ECHO_REQUEST        /* Symmetric message */
	OFPT_ECHO_REPLY          /* Symmetric message */
	OFPT_EXPERIMENTER        /* Symmetric message */
	/* Switch configuration messages. */
	OFPT_FEATURES_REQUEST   /* Controller/switch message */
	OFPT_FEATURES_REPLY     /* Controller/switch message */
	OFPT_GET_CONFIG_REQUEST /* Controller/switch message */
	OFPT_GET_CONFIG_REPLY   /* Controller/switch message */
	OFPT_SET_CONFIG         /* Controller/switch message */
	/* Asynchronous messages. */
	OFPT_PACKET_IN    /* Async message */
	OFPT_FLOW_REMOVED /* Async message */
	OFPT_PORT_STATUS  /* Async message */
	/* Controller command messages. */
	OFPT_PACKET_OUT /* Controller/switch message */
	OFPT_FLOW_MOD   /* Controller/switch message */
	OFPT_GROUP_MOD  /* Controller/switch message */
	OFPT_PORT_MOD   /* Controller/switch message */
	OFPT_TABLE_MOD  /* Controller/switch message */
	/* Multipart messages. */
	OFPT_MULTIPART_REQUEST /* Controller/switch message */
	OFPT_MULTIPART_REPLY   /* Controller/switch message */
	/* Barrier messages. */
	OFPT_BARRIER_REQUEST /* Controller/switch message */
	OFPT_BARRIER_REPLY   /* Controller/switch message */
)

const (
	OFP_NO_BUFFER = 0xffffffff
)

const (
	/* Maximum number of physical and logical switch ports. */
	OFPP_MAX = 0xffffff00
	/* Send the packet out the input port. */
	OFPP_IN_PORT = 0xfffffff8
	/* Submit the packet to the first flow table. */
	OFPP_TABLE = 0xfffffff9
	/* Forward using non-OpenFlow pipeline. */
	OFPP_NORMAL = 0xfffffffa
	/* Flood using non-OpenFlow pipeline. */
	OFPP_FLOOD = 0xfffffffb
	/* All standard ports except input port. */
	OFPP_ALL = 0xfffffffc
	/* Send to controller. */
	OFPP_CONTROLLER = 0xfffffffd
	/* Local openflow "port". */
	OFPP_LOCAL = 0xfffffffe
	/* Wildcard port used only for flow mod (delete) and flow stats requests. */
	OFPP_ANY = 0xffffffff
)

const (
	/* Maximum max_len value which can be used to request a specific byte length. */
	OFPCML_MAX = 0xffe5
	/* Indicates that no buffering should be applied and the whole packet is to be sent to the controller. */
	OFPCML_NO_BUFFER = 0xffff
)

const (
	OFPC_FRAG_NORMAL = 0
)

const (
	OFPC_FLOW_STATS   = 1 << 0 /* Flow statistics. */
	OFPC_TABLE_STATS  = 1 << 1 /* Table statistics. */
	OFPC_PORT_STATS   = 1 << 2 /* Port statistics. */
	OFPC_GROUP_STATS  = 1 << 3 /* Group statistics. */
	OFPC_IP_REASM     = 1 << 5 /* Can reassemble IP fragments. */
	OFPC_QUEUE_STATS  = 1 << 6 /* Queue statistics. */
	OFPC_PORT_BLOCKED = 1 << 8 /* Switch will block looping ports. */
)

const (
	OFPFC_ADD           = iota /* New flow. */
	OFPFC_MODIFY               /* Modify all matching flows. */
	OFPFC_MODIFY_STRICT        /* Modify entry strictly matching wildcards and priority. */
	OFPFC_DELETE               /* Delete all matching flows. */
	OFPFC_DELETE_STRICT        /* Delete entry strictly matching wildcards and priority. */
)

const (
	OFPFF_SEND_FLOW_REM = 1 << 0 /* Send flow removed message when flow expires or is deleted. */
	OFPFF_CHECK_OVERLAP = 1 << 1 /* Check for overlapping entries first. */
)

const (
	OFPMT_STANDARD = iota /* Deprecated. */
	OFPMT_OXM             /* OpenFlow Extensible Match */
)

const (
	OFPXMT_OFB_IN_PORT  = 0  /* Switch input port. */
	OFPXMT_OFB_ETH_DST  = 3  /* Ethernet destination address. */
	OFPXMT_OFB_ETH_SRC  = 4  /* Ethernet source address. */
	OFPXMT_OFB_ETH_TYPE = 5  /* Ethernet frame type. */
	OFPXMT_OFB_IP_PROTO = 10 /* IP protocol. */
	OFPXMT_OFB_IPV4_SRC = 11 /* IPv4 source address. */
	OFPXMT_OFB_IPV4_DST = 12 /* IPv4 destination address. */
	OFPXMT_OFB_TCP_SRC  = 13 /* TCP source port. */
	OFPXMT_OFB_TCP_DST  = 14 /* TCP destination port. */
	OFPXMT_OFB_UDP_SRC  = 15 /* UDP source port. */
	OFPXMT_OFB_UDP_DST  = 16 /* UDP destination port. */
)

const (
	OFPXMC_OPENFLOW_BASIC = 0x8000 /* Basic class for OpenFlow */
)

const (
	OFPAT_OUTPUT    = 0  /* Output to switch port. */
	OFPAT_SET_FIELD = 25 /* Set a header field using OXM TLV format. */
)

const (
	OFPIT_GOTO_TABLE     = 1 /* Setup the next table in the lookup pipeline */
	OFPIT_WRITE_METADATA = 2 /* Setup the metadata field for use later in pipeline */
	OFPIT_WRITE_ACTIONS  = 3 /* Write the action(s) onto the datapath action set */
	OFPIT_APPLY_ACTIONS  = 4 /* Applies the action(s) immediately */
	OFPIT_CLEAR_ACTIONS  = 5 /* Clears all actions from the datapath action set */
)

const (
	OFPPR_ADD    = iota /* The port was added. */
	OFPPR_DELETE        /* The port was removed. */
	OFPPR_MODIFY        /* Some attribute of the port has changed. */
)

const (
	OFPPC_PORT_DOWN = 1 << 0 /* Port is administratively down. */
)

const (
	OFPPS_LINK_DOWN = 1 << 0 /* No physical link present. */
)

const (
	OFPET_FLOW_MOD_FAILED = 5
	OFPFMFC_OVERLAP       = 3
)

const (
	/* Wildcard group used only for flow stats requests. Selects all groups regardless of output group. */
	OFPG_ANY = 0xffffffff
)

const (
	/* Wildcard table used for table config, flow stats and flow deletes. */
	OFPTT_ALL = 0xff
)
