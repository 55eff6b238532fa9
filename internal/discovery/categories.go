// Package discovery collects operational state from network devices.
//
// One device sweep walks a fixed list of categories, checking the command
// cache before touching the device, normalizing raw parser rows into the
// typed tables and reporting progress to the job registry after every
// category. Two CategoryFetcher implementations exist: the foreground one
// calls the internal exec HTTP service, the background one drives SSH
// directly so a worker can own a whole device sweep.
package discovery

import (
	"fmt"
	"strings"
)

// Category is one discovery data type.
type Category string

const (
	CategoryInterfaces   Category = "interfaces"
	CategoryStaticRoutes Category = "static-routes"
	CategoryOSPFRoutes   Category = "ospf-routes"
	CategoryBGPRoutes    Category = "bgp-routes"
	CategoryMACTable     Category = "mac-table"
	CategoryCDPNeighbors Category = "cdp-neighbors"
	CategoryARP          Category = "arp"
)

// commands maps each category to the fixed CLI command whose parsed output
// feeds it. The command string doubles as the cache key suffix.
var commands = map[Category]string{
	CategoryInterfaces:   "show interfaces",
	CategoryStaticRoutes: "show ip route static",
	CategoryOSPFRoutes:   "show ip route ospf",
	CategoryBGPRoutes:    "show ip route bgp",
	CategoryMACTable:     "show mac address-table",
	CategoryCDPNeighbors: "show cdp neighbors detail",
	CategoryARP:          "show ip arp",
}

// Command returns the CLI command backing the category.
func (c Category) Command() string { return commands[c] }

// Valid reports whether the category is known.
func (c Category) Valid() bool {
	_, ok := commands[c]
	return ok
}

// ForegroundOrder is the fixed sweep order used by the request-driven path.
var ForegroundOrder = []Category{
	CategoryInterfaces,
	CategoryStaticRoutes,
	CategoryOSPFRoutes,
	CategoryBGPRoutes,
	CategoryMACTable,
	CategoryCDPNeighbors,
	CategoryARP,
}

// BackgroundOrder is the fixed sweep order used by worker tasks. Neighbor
// and address data come first so a task cancelled mid-sweep still leaves
// linkable tables behind.
var BackgroundOrder = []Category{
	CategoryInterfaces,
	CategoryCDPNeighbors,
	CategoryARP,
	CategoryMACTable,
	CategoryStaticRoutes,
	CategoryOSPFRoutes,
	CategoryBGPRoutes,
}

// AllCategories lists every category in foreground order.
func AllCategories() []Category {
	out := make([]Category, len(ForegroundOrder))
	copy(out, ForegroundOrder)
	return out
}

// ParseCategories validates request-supplied category names. An empty input
// selects every category.
func ParseCategories(names []string) ([]Category, error) {
	if len(names) == 0 {
		return AllCategories(), nil
	}
	seen := make(map[Category]bool, len(names))
	out := make([]Category, 0, len(names))
	for _, n := range names {
		c := Category(strings.ToLower(strings.TrimSpace(n)))
		if !c.Valid() {
			return nil, fmt.Errorf("unknown category %q", n)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// orderFor filters a fixed order down to the requested set, preserving the
// order's position for each requested category.
func orderFor(order []Category, requested []Category) []Category {
	want := make(map[Category]bool, len(requested))
	for _, c := range requested {
		want[c] = true
	}
	out := make([]Category, 0, len(requested))
	for _, c := range order {
		if want[c] {
			out = append(out, c)
		}
	}
	return out
}
