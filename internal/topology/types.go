// Package topology assembles the cached per-device tables into a
// deduplicated multi-source graph and lays it out for visualization.
package topology

// LinkType tags which data source produced a link.
type LinkType string

const (
	LinkNeighbor    LinkType = "neighbor-protocol"
	LinkStaticRoute LinkType = "static-route"
	LinkOSPFRoute   LinkType = "ospf-route"
	LinkBGPRoute    LinkType = "bgp-route"
	LinkARP         LinkType = "arp-discovered"
)

// Position is a 2D layout coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is the graph view of a device record. Position is set only when a
// layout was requested and succeeded.
type Node struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	PrimaryIP  string    `json:"primary_ip,omitempty"`
	Platform   string    `json:"platform,omitempty"`
	Position   *Position `json:"position,omitempty"`
}

// Link is a derived edge; links are rebuilt on every graph request, never
// persisted. Both endpoints always resolve to a node in the same graph —
// one-sided candidates are dropped during extraction.
type Link struct {
	SourceDeviceID  string            `json:"source_device_id"`
	TargetDeviceID  string            `json:"target_device_id"`
	SourceInterface string            `json:"source_interface,omitempty"`
	TargetInterface string            `json:"target_interface,omitempty"`
	Type            LinkType          `json:"link_type"`
	Bidirectional   bool              `json:"bidirectional"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Metadata summarizes what went into the graph.
type Metadata struct {
	DeviceCount int      `json:"device_count"`
	LinkCount   int      `json:"link_count"`
	Sources     []string `json:"sources,omitempty"`
	Layout      string   `json:"layout,omitempty"`
}

// Graph is the assembled topology.
type Graph struct {
	Nodes    []Node   `json:"nodes"`
	Links    []Link   `json:"links"`
	Metadata Metadata `json:"metadata"`
}

// BuildOptions selects devices, link sources and layout for one build.
type BuildOptions struct {
	// DeviceIDs restricts the graph to a subset; empty means every cached device.
	DeviceIDs            []string `json:"device_ids,omitempty"`
	IncludeNeighborLinks bool     `json:"include_neighbor_links"`
	IncludeRouting       bool     `json:"include_routing"`
	// RouteKinds filters routing links: any of "static", "ospf", "bgp".
	// Empty means all three when IncludeRouting is set.
	RouteKinds    []string `json:"route_kinds,omitempty"`
	IncludeLayer2 bool     `json:"include_layer2"`
	// LayoutAlgorithm: "circular", "hierarchical", "force_directed" or ""
	// for no layout (positions left unset).
	LayoutAlgorithm string `json:"layout_algorithm,omitempty"`
}
