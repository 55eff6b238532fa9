package topology

import "strings"

// Resolution is the outcome of matching a neighbor-protocol name/IP against
// the device table.
//
// Confidence: "high" for a name match (with or without a confirming IP),
// "medium" for an IP-only match, "low" when nothing matched — low-confidence
// neighbors are never linked into the graph.
type Resolution struct {
	DeviceID   string `json:"device_id,omitempty"`
	MatchedBy  string `json:"matched_by"` // name | ip | both | none
	Confidence string `json:"confidence"` // high | medium | low
}

// ResolveNeighbor matches a reported neighbor name and optional IP against
// all cached devices.
func (b *Builder) ResolveNeighbor(name, ip string) (*Resolution, error) {
	idx, err := b.loadIndex(nil)
	if err != nil {
		return nil, err
	}
	return resolveAgainst(idx, name, ip), nil
}

// resolveAgainst tries a name match first: the portion before the first "."
// is compared case-sensitively against stored device names, exactly and then
// as a prefix. Failing that, the IP is matched against primary and interface
// addresses. A name match confirmed by the IP reports matched_by "both".
func resolveAgainst(idx *deviceIndex, name, ip string) *Resolution {
	var nameMatch string
	if name != "" {
		short, _, _ := strings.Cut(name, ".")
		for _, d := range idx.devices {
			if d.Name == "" {
				continue
			}
			if d.Name == name || d.Name == short {
				nameMatch = d.DeviceID
				break
			}
		}
		if nameMatch == "" && short != "" {
			for _, d := range idx.devices {
				if d.Name != "" && strings.HasPrefix(d.Name, short) {
					nameMatch = d.DeviceID
					break
				}
			}
		}
	}

	var ipMatch string
	if ip != "" {
		ipMatch = idx.ownerOf(ip)
	}

	switch {
	case nameMatch != "" && nameMatch == ipMatch:
		return &Resolution{DeviceID: nameMatch, MatchedBy: "both", Confidence: "high"}
	case nameMatch != "":
		return &Resolution{DeviceID: nameMatch, MatchedBy: "name", Confidence: "high"}
	case ipMatch != "":
		return &Resolution{DeviceID: ipMatch, MatchedBy: "ip", Confidence: "medium"}
	default:
		return &Resolution{MatchedBy: "none", Confidence: "low"}
	}
}
