package topology

import (
	"fmt"
	"log"
	"strings"

	"github.com/vesaa/netgraph/internal/models"
	"github.com/vesaa/netgraph/internal/store"
)

// Builder reads the cached per-device tables and assembles the graph.
type Builder struct {
	Store *store.Store
}

// deviceIndex is the lookup state for one build: devices by id, and an
// address index covering primary IPs plus every cached interface IP.
type deviceIndex struct {
	devices []models.Device
	byID    map[string]*models.Device
	// byPrimaryIP and byAnyIP both map address → device id; primary wins
	// when both match the same address.
	byPrimaryIP map[string]string
	byAnyIP     map[string]string
}

func (b *Builder) loadIndex(deviceIDs []string) (*deviceIndex, error) {
	devices, err := b.Store.ListDevices(deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	idx := &deviceIndex{
		devices:     devices,
		byID:        make(map[string]*models.Device, len(devices)),
		byPrimaryIP: make(map[string]string, len(devices)),
		byAnyIP:     make(map[string]string),
	}
	ids := make([]string, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		idx.byID[d.DeviceID] = d
		ids = append(ids, d.DeviceID)
		if d.PrimaryIP != "" {
			idx.byPrimaryIP[d.PrimaryIP] = d.DeviceID
			idx.byAnyIP[d.PrimaryIP] = d.DeviceID
		}
	}
	if len(ids) == 0 {
		return idx, nil
	}
	addrs, err := b.Store.IPAddresses(ids)
	if err != nil {
		return nil, fmt.Errorf("loading interface addresses: %w", err)
	}
	for _, a := range addrs {
		if _, taken := idx.byAnyIP[a.Address]; !taken {
			idx.byAnyIP[a.Address] = a.DeviceID
		}
	}
	return idx, nil
}

// ownerOf resolves an address to a device id: primary IP match first, any
// cached interface IP second. Empty result means no known owner.
func (idx *deviceIndex) ownerOf(addr string) string {
	if id, ok := idx.byPrimaryIP[addr]; ok {
		return id
	}
	return idx.byAnyIP[addr]
}

// Build assembles the topology graph for the given options. An empty device
// set yields an empty graph, not an error.
func (b *Builder) Build(opts BuildOptions) (*Graph, error) {
	idx, err := b.loadIndex(opts.DeviceIDs)
	if err != nil {
		return nil, err
	}

	graph := &Graph{Nodes: []Node{}, Links: []Link{}}
	for _, d := range idx.devices {
		graph.Nodes = append(graph.Nodes, Node{
			DeviceID:   d.DeviceID,
			DeviceName: d.Name,
			PrimaryIP:  d.PrimaryIP,
			Platform:   d.Platform,
		})
	}

	var sources []string
	scope := make([]string, 0, len(idx.devices))
	for _, d := range idx.devices {
		scope = append(scope, d.DeviceID)
	}

	var links []Link
	if len(scope) > 0 {
		if opts.IncludeNeighborLinks {
			sources = append(sources, "neighbor-protocol")
			neighborLinks, err := b.neighborLinks(idx, scope)
			if err != nil {
				return nil, err
			}
			links = append(links, neighborLinks...)
		}
		if opts.IncludeRouting {
			sources = append(sources, "routing")
			routeLinks, err := b.routeLinks(idx, scope, opts.RouteKinds)
			if err != nil {
				return nil, err
			}
			links = append(links, routeLinks...)
		}
		if opts.IncludeLayer2 {
			sources = append(sources, "layer2")
			arpLinks, err := b.arpLinks(idx, scope)
			if err != nil {
				return nil, err
			}
			links = append(links, arpLinks...)
		}
	}

	graph.Links = dedupeLinks(links)

	if opts.LayoutAlgorithm != "" && len(graph.Nodes) > 0 {
		applyLayout(graph.Nodes, graph.Links, opts.LayoutAlgorithm)
	}

	graph.Metadata = Metadata{
		DeviceCount: len(graph.Nodes),
		LinkCount:   len(graph.Links),
		Sources:     sources,
		Layout:      opts.LayoutAlgorithm,
	}
	return graph, nil
}

// neighborLinks extracts bidirectional links from the CDP tables. A row whose
// neighbor cannot be resolved to a known device is dropped, never emitted
// one-sided.
func (b *Builder) neighborLinks(idx *deviceIndex, scope []string) ([]Link, error) {
	rows, err := b.Store.CDPNeighbors(scope)
	if err != nil {
		return nil, fmt.Errorf("loading CDP neighbors: %w", err)
	}
	var links []Link
	for _, n := range rows {
		res := resolveAgainst(idx, n.NeighborName, n.NeighborIP)
		if res.DeviceID == "" || res.DeviceID == n.DeviceID {
			continue
		}
		links = append(links, Link{
			SourceDeviceID:  n.DeviceID,
			TargetDeviceID:  res.DeviceID,
			SourceInterface: n.LocalInterface,
			TargetInterface: n.NeighborPort,
			Type:            LinkNeighbor,
			Bidirectional:   true,
			Metadata: map[string]string{
				"neighbor_name": n.NeighborName,
				"confidence":    res.Confidence,
			},
		})
	}
	return links, nil
}

// routeLinks extracts directed links from routing tables: one per route whose
// next-hop IP belongs to a known device. Unresolvable next-hops produce
// nothing, silently.
func (b *Builder) routeLinks(idx *deviceIndex, scope, kinds []string) ([]Link, error) {
	protocols := normalizeRouteKinds(kinds)
	rows, err := b.Store.Routes(scope, protocols)
	if err != nil {
		return nil, fmt.Errorf("loading routes: %w", err)
	}
	var links []Link
	for _, r := range rows {
		if r.NextHop == "" {
			continue
		}
		target := idx.ownerOf(r.NextHop)
		if target == "" || target == r.DeviceID {
			continue
		}
		meta := map[string]string{
			"network":  r.Network,
			"next_hop": r.NextHop,
		}
		if r.Metric != "" {
			meta["metric"] = r.Metric
		}
		var lt LinkType
		switch r.Protocol {
		case models.RouteOSPF:
			lt = LinkOSPFRoute
			if r.Area != "" {
				meta["area"] = r.Area
			}
		case models.RouteBGP:
			lt = LinkBGPRoute
			if r.ASPath != "" {
				meta["as_path"] = r.ASPath
			}
			if r.LocalPref != "" {
				meta["local_pref"] = r.LocalPref
			}
		default:
			lt = LinkStaticRoute
		}
		links = append(links, Link{
			SourceDeviceID: r.DeviceID,
			TargetDeviceID: target,
			Type:           lt,
			Bidirectional:  false,
			Metadata:       meta,
		})
	}
	return links, nil
}

// arpLinks extracts directed links from ARP tables, excluding entries that
// resolve back to the reporting device itself.
func (b *Builder) arpLinks(idx *deviceIndex, scope []string) ([]Link, error) {
	rows, err := b.Store.ARPEntries(scope)
	if err != nil {
		return nil, fmt.Errorf("loading ARP entries: %w", err)
	}
	var links []Link
	for _, a := range rows {
		target := idx.ownerOf(a.Address)
		if target == "" || target == a.DeviceID {
			continue
		}
		meta := map[string]string{"ip": a.Address}
		if a.MACAddress != "" {
			meta["mac"] = a.MACAddress
		}
		if a.Age != "" {
			meta["age"] = a.Age
		}
		links = append(links, Link{
			SourceDeviceID:  a.DeviceID,
			TargetDeviceID:  target,
			SourceInterface: a.Interface,
			Type:            LinkARP,
			Bidirectional:   false,
			Metadata:        meta,
		})
	}
	return links, nil
}

// dedupeLinks collapses bidirectional links that share the same unordered
// device pair, first seen wins. Directed links pass through untouched — two
// directions of the same pair are distinct links.
func dedupeLinks(links []Link) []Link {
	out := make([]Link, 0, len(links))
	seen := make(map[string]bool)
	for _, l := range links {
		if !l.Bidirectional {
			out = append(out, l)
			continue
		}
		a, b := l.SourceDeviceID, l.TargetDeviceID
		if a > b {
			a, b = b, a
		}
		key := a + "|" + b
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}

func normalizeRouteKinds(kinds []string) []string {
	if len(kinds) == 0 {
		return []string{models.RouteStatic, models.RouteOSPF, models.RouteBGP}
	}
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		k = strings.ToLower(strings.TrimSpace(k))
		switch k {
		case models.RouteStatic, models.RouteOSPF, models.RouteBGP:
			out = append(out, k)
		default:
			log.Printf("[topology] ignoring unknown route kind %q", k)
		}
	}
	return out
}
