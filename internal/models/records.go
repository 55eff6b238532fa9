// Package models defines GORM data models for NetGraph.
package models

import "gorm.io/gorm"

// Per-category tables. Each discovery refresh replaces the full set of rows
// for (device, table) — delete-all then bulk insert, never a merge. A refresh
// that returns zero rows therefore clears the table for that device.

// InterfaceRecord is one physical or logical interface on a device.
type InterfaceRecord struct {
	gorm.Model

	DeviceID    string `gorm:"index;not null" json:"device_id"`
	Name        string `gorm:"index;not null" json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`      // up/down/admin-down
	Protocol    string `json:"protocol"`    // line protocol state
	MACAddress  string `json:"mac_address"`
	MTU         string `json:"mtu"`
	Speed       string `json:"speed"`
	Duplex      string `json:"duplex"`
}

// IPAddressRecord maps an address to the interface carrying it. The graph
// builder uses these for next-hop and ARP owner resolution beyond primary IPs.
type IPAddressRecord struct {
	gorm.Model

	DeviceID  string `gorm:"index;not null" json:"device_id"`
	Interface string `json:"interface"`
	Address   string `gorm:"index;not null" json:"address"`
	Prefix    string `json:"prefix"`
}

// ARPEntry is one row of a device's ARP table.
type ARPEntry struct {
	gorm.Model

	DeviceID   string `gorm:"index;not null" json:"device_id"`
	Address    string `gorm:"index;not null" json:"address"`
	MACAddress string `json:"mac_address"`
	Interface  string `json:"interface"`
	Age        string `json:"age"`
}

// Route protocols. Static, OSPF and BGP share one table discriminated by
// Protocol; the protocol-specific columns stay empty for the others.
const (
	RouteStatic = "static"
	RouteOSPF   = "ospf"
	RouteBGP    = "bgp"
)

// RouteEntry is one row of a device's routing table for a single protocol.
type RouteEntry struct {
	gorm.Model

	DeviceID string `gorm:"index;not null" json:"device_id"`
	Protocol string `gorm:"index;not null" json:"protocol"`
	Network  string `gorm:"index;not null" json:"network"`
	NextHop  string `gorm:"index" json:"next_hop"`
	Metric   string `json:"metric"`
	Distance string `json:"distance"`

	// OSPF
	Area string `json:"area,omitempty"`
	// BGP
	ASPath    string `json:"as_path,omitempty"`
	LocalPref string `json:"local_pref,omitempty"`
}

// MACTableEntry is one row of a switch's MAC address table.
type MACTableEntry struct {
	gorm.Model

	DeviceID   string `gorm:"index;not null" json:"device_id"`
	MACAddress string `gorm:"index;not null" json:"mac_address"`
	VLAN       string `json:"vlan"`
	Interface  string `json:"interface"`
	EntryType  string `json:"entry_type"` // dynamic/static
}

// CDPNeighborRecord is one neighbor-protocol adjacency reported by a device.
type CDPNeighborRecord struct {
	gorm.Model

	DeviceID       string `gorm:"index;not null" json:"device_id"`
	NeighborName   string `gorm:"index;not null" json:"neighbor_name"`
	NeighborIP     string `json:"neighbor_ip"`
	LocalInterface string `gorm:"not null" json:"local_interface"`
	NeighborPort   string `json:"neighbor_port"`
	NeighborModel  string `json:"neighbor_model"`
	Capabilities   string `json:"capabilities"`
}

// CommandCache stores raw parsed command output per (device, command).
// Payload is the JSON-encoded row list exactly as the executor received it.
// Freshness is judged against UpdatedAt, which GORM bumps on every save;
// stale rows are ignored by readers, not deleted — the next fetch overwrites.
type CommandCache struct {
	gorm.Model

	DeviceID string `gorm:"index:idx_cache_key,unique;not null" json:"device_id"`
	Command  string `gorm:"index:idx_cache_key,unique;not null" json:"command"`
	Payload  string `json:"payload"`
}
