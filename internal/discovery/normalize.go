package discovery

import (
	"fmt"
	"log"
	"strings"

	"github.com/vesaa/netgraph/internal/models"
)

// Upstream parsers disagree on field naming: casing varies between template
// versions and some fields arrive as single-element lists. All shape
// tolerance lives here, once, at ingestion — downstream code only ever sees
// the typed record structs.

// fieldValue resolves the first present candidate key against a row,
// case-insensitively, coercing list values to their first element and
// trimming whitespace. Missing fields yield "".
func fieldValue(row map[string]any, candidates ...string) string {
	lowered := make(map[string]any, len(row))
	for k, v := range row {
		lowered[strings.ToLower(k)] = v
	}
	for _, key := range candidates {
		v, ok := lowered[strings.ToLower(key)]
		if !ok {
			continue
		}
		if s := coerceString(v); s != "" {
			return s
		}
	}
	return ""
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) == 0 {
			return ""
		}
		return coerceString(t[0])
	case []string:
		if len(t) == 0 {
			return ""
		}
		return strings.TrimSpace(t[0])
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// NormalizeInterfaces maps raw interface rows to records, also extracting
// per-interface IP addresses for the resolution tables. Rows without an
// interface name are dropped.
func NormalizeInterfaces(deviceID string, rows []map[string]any) ([]models.InterfaceRecord, []models.IPAddressRecord) {
	var ifaces []models.InterfaceRecord
	var addrs []models.IPAddressRecord
	for _, row := range rows {
		name := fieldValue(row, "interface", "intf", "port", "name")
		if name == "" {
			log.Printf("[normalize] %s: dropping interface row without a name", deviceID)
			continue
		}
		ifaces = append(ifaces, models.InterfaceRecord{
			DeviceID:    deviceID,
			Name:        name,
			Description: fieldValue(row, "description", "descr"),
			Status:      fieldValue(row, "link_status", "status", "admin_state"),
			Protocol:    fieldValue(row, "protocol_status", "protocol"),
			MACAddress:  fieldValue(row, "mac_address", "hardware_address", "bia"),
			MTU:         fieldValue(row, "mtu"),
			Speed:       fieldValue(row, "speed", "bandwidth"),
			Duplex:      fieldValue(row, "duplex"),
		})
		if ip := fieldValue(row, "ip_address", "ipaddr", "ip"); ip != "" {
			// Strip an optional /prefix suffix into its own column.
			addr, prefix := ip, fieldValue(row, "prefix_length", "prefix")
			if i := strings.IndexByte(ip, '/'); i > 0 {
				addr, prefix = ip[:i], ip[i+1:]
			}
			addrs = append(addrs, models.IPAddressRecord{
				DeviceID:  deviceID,
				Interface: name,
				Address:   addr,
				Prefix:    prefix,
			})
		}
	}
	return ifaces, addrs
}

// NormalizeARP maps raw ARP rows to records. Rows without an IP address are dropped.
func NormalizeARP(deviceID string, rows []map[string]any) []models.ARPEntry {
	var out []models.ARPEntry
	for _, row := range rows {
		addr := fieldValue(row, "address", "ip_address", "ip")
		if addr == "" {
			log.Printf("[normalize] %s: dropping ARP row without an address", deviceID)
			continue
		}
		out = append(out, models.ARPEntry{
			DeviceID:   deviceID,
			Address:    addr,
			MACAddress: fieldValue(row, "mac", "mac_address", "hardware_addr"),
			Interface:  fieldValue(row, "interface", "port"),
			Age:        fieldValue(row, "age"),
		})
	}
	return out
}

// NormalizeRoutes maps raw routing rows for one protocol. Rows without a
// destination network are dropped.
func NormalizeRoutes(deviceID, protocol string, rows []map[string]any) []models.RouteEntry {
	var out []models.RouteEntry
	for _, row := range rows {
		network := fieldValue(row, "network", "prefix", "destination")
		if network == "" {
			log.Printf("[normalize] %s: dropping %s route row without a network", deviceID, protocol)
			continue
		}
		entry := models.RouteEntry{
			DeviceID: deviceID,
			Protocol: protocol,
			Network:  network,
			NextHop:  fieldValue(row, "nexthop_ip", "next_hop", "nexthop", "via"),
			Metric:   fieldValue(row, "metric", "cost"),
			Distance: fieldValue(row, "distance", "admin_distance"),
		}
		switch protocol {
		case models.RouteOSPF:
			entry.Area = fieldValue(row, "area", "ospf_area")
		case models.RouteBGP:
			entry.ASPath = fieldValue(row, "as_path", "aspath", "path")
			entry.LocalPref = fieldValue(row, "local_preference", "local_pref")
		}
		out = append(out, entry)
	}
	return out
}

// NormalizeMACTable maps raw MAC table rows. Rows without a MAC address are dropped.
func NormalizeMACTable(deviceID string, rows []map[string]any) []models.MACTableEntry {
	var out []models.MACTableEntry
	for _, row := range rows {
		mac := fieldValue(row, "destination_address", "mac_address", "mac")
		if mac == "" {
			log.Printf("[normalize] %s: dropping MAC row without an address", deviceID)
			continue
		}
		out = append(out, models.MACTableEntry{
			DeviceID:   deviceID,
			MACAddress: mac,
			VLAN:       fieldValue(row, "vlan", "vlan_id"),
			Interface:  fieldValue(row, "destination_port", "interface", "port"),
			EntryType:  fieldValue(row, "type", "entry_type"),
		})
	}
	return out
}

// NormalizeCDPNeighbors maps raw neighbor rows. A row must carry both a
// neighbor name and a local interface to be usable for link extraction;
// anything less is logged and discarded.
func NormalizeCDPNeighbors(deviceID string, rows []map[string]any) []models.CDPNeighborRecord {
	var out []models.CDPNeighborRecord
	for _, row := range rows {
		name := fieldValue(row, "destination_host", "neighbor_name", "neighbor")
		local := fieldValue(row, "local_port", "local_interface", "local_intf")
		if name == "" || local == "" {
			log.Printf("[normalize] %s: dropping CDP row (name=%q local=%q)", deviceID, name, local)
			continue
		}
		out = append(out, models.CDPNeighborRecord{
			DeviceID:       deviceID,
			NeighborName:   name,
			NeighborIP:     fieldValue(row, "management_ip", "neighbor_ip", "mgmt_address"),
			LocalInterface: local,
			NeighborPort:   fieldValue(row, "remote_port", "neighbor_interface", "neighbor_port"),
			NeighborModel:  fieldValue(row, "platform", "neighbor_model"),
			Capabilities:   fieldValue(row, "capabilities"),
		})
	}
	return out
}
