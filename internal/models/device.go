// Package models defines GORM data models for NetGraph.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Device is the anchor record for everything discovery learns about a node.
// Every per-category table row (interfaces, routes, ARP, …) references a
// Device by DeviceID; discovery upserts this record before writing any of
// them, so a category row never exists without its device.
type Device struct {
	gorm.Model

	// DeviceID is the external inventory identifier (opaque to us).
	DeviceID string `gorm:"uniqueIndex;not null" json:"device_id"`
	Name     string `gorm:"index" json:"device_name"`
	// PrimaryIP is the management address used for direct transport and
	// for next-hop / neighbor IP resolution in the graph builder.
	PrimaryIP string `gorm:"index" json:"primary_ip"`
	Platform  string `json:"platform"`
	// NetworkDriver names the command dialect (e.g. "cisco_ios").
	NetworkDriver string `json:"network_driver"`

	LastDiscovered time.Time `json:"last_discovered"`
}

// DeviceSummary is the DTO returned by the device listing API.
type DeviceSummary struct {
	DeviceID       string    `json:"device_id"`
	Name           string    `json:"device_name"`
	PrimaryIP      string    `json:"primary_ip"`
	Platform       string    `json:"platform"`
	LastDiscovered time.Time `json:"last_discovered"`
}

// Summary converts a Device to its API DTO.
func (d *Device) Summary() DeviceSummary {
	return DeviceSummary{
		DeviceID:       d.DeviceID,
		Name:           d.Name,
		PrimaryIP:      d.PrimaryIP,
		Platform:       d.Platform,
		LastDiscovered: d.LastDiscovered,
	}
}
