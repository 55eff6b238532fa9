package topology

import (
	"log"
	"math"
	"sort"
)

// Layout algorithm names accepted by BuildOptions.LayoutAlgorithm.
const (
	LayoutCircular      = "circular"
	LayoutHierarchical  = "hierarchical"
	LayoutForceDirected = "force_directed"
)

const (
	layoutCenterX = 400.0
	layoutCenterY = 300.0
	layoutRadius  = 250.0

	// Force-directed tuning. The iteration count is fixed — no convergence
	// check — so runtime is deterministic for a given node count.
	forceIterations = 100
	springLength    = 150.0
	springStrength  = 0.02
	repulsion       = 60000.0
	damping         = 0.85
	maxDisplacement = 40.0
)

// applyLayout computes positions in place. A layout must never break graph
// assembly: any panic is recovered and positions are simply left unset.
func applyLayout(nodes []Node, links []Link, algorithm string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[topology] layout %q failed: %v — leaving positions unset", algorithm, r)
			for i := range nodes {
				nodes[i].Position = nil
			}
		}
	}()

	switch algorithm {
	case LayoutCircular:
		layoutCircularNodes(nodes)
	case LayoutHierarchical:
		layoutHierarchicalNodes(nodes, links)
	case LayoutForceDirected:
		layoutForceDirectedNodes(nodes, links)
	default:
		log.Printf("[topology] unknown layout %q — leaving positions unset", algorithm)
	}
}

// layoutCircularNodes spaces nodes evenly on a fixed-radius circle by index.
func layoutCircularNodes(nodes []Node) {
	n := len(nodes)
	for i := range nodes {
		angle := 2 * math.Pi * float64(i) / float64(n)
		nodes[i].Position = &Position{
			X: layoutCenterX + layoutRadius*math.Cos(angle),
			Y: layoutCenterY + layoutRadius*math.Sin(angle),
		}
	}
}

// layoutHierarchicalNodes sorts nodes by connection count (descending) and
// places them into fixed-width rows, hubs on top.
func layoutHierarchicalNodes(nodes []Node, links []Link) {
	degree := make(map[string]int, len(nodes))
	for _, l := range links {
		degree[l.SourceDeviceID]++
		degree[l.TargetDeviceID]++
	}

	order := make([]int, len(nodes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := degree[nodes[order[a]].DeviceID], degree[nodes[order[b]].DeviceID]
		if da != db {
			return da > db
		}
		return nodes[order[a]].DeviceID < nodes[order[b]].DeviceID
	})

	const rowWidth = 5
	const colSpacing, rowSpacing = 160.0, 130.0
	for rank, i := range order {
		row, col := rank/rowWidth, rank%rowWidth
		nodes[i].Position = &Position{
			X: 100 + float64(col)*colSpacing,
			Y: 80 + float64(row)*rowSpacing,
		}
	}
}

// layoutForceDirectedNodes runs a fixed number of relaxation iterations:
// spring attraction toward springLength for connected pairs, inverse-square
// repulsion for all pairs, damped capped position updates. Seeding from the
// circular layout keeps the result deterministic.
func layoutForceDirectedNodes(nodes []Node, links []Link) {
	n := len(nodes)
	layoutCircularNodes(nodes)
	if n < 2 {
		return
	}

	indexOf := make(map[string]int, n)
	for i := range nodes {
		indexOf[nodes[i].DeviceID] = i
	}
	type edge struct{ a, b int }
	var edges []edge
	for _, l := range links {
		a, aok := indexOf[l.SourceDeviceID]
		b, bok := indexOf[l.TargetDeviceID]
		if aok && bok && a != b {
			edges = append(edges, edge{a, b})
		}
	}

	fx := make([]float64, n)
	fy := make([]float64, n)
	for iter := 0; iter < forceIterations; iter++ {
		for i := range fx {
			fx[i], fy[i] = 0, 0
		}

		// Inverse-square repulsion between all pairs.
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := nodes[i].Position.X - nodes[j].Position.X
				dy := nodes[i].Position.Y - nodes[j].Position.Y
				distSq := dx*dx + dy*dy
				if distSq < 0.01 {
					// Coincident nodes: nudge apart deterministically.
					dx, dy, distSq = 0.1*float64(i-j), 0.1, 0.02
				}
				dist := math.Sqrt(distSq)
				f := repulsion / distSq
				fx[i] += f * dx / dist
				fy[i] += f * dy / dist
				fx[j] -= f * dx / dist
				fy[j] -= f * dy / dist
			}
		}

		// Spring attraction along edges toward the target length.
		for _, e := range edges {
			dx := nodes[e.b].Position.X - nodes[e.a].Position.X
			dy := nodes[e.b].Position.Y - nodes[e.a].Position.Y
			dist := math.Hypot(dx, dy)
			if dist < 0.1 {
				continue
			}
			f := springStrength * (dist - springLength)
			fx[e.a] += f * dx / dist
			fy[e.a] += f * dy / dist
			fx[e.b] -= f * dx / dist
			fy[e.b] -= f * dy / dist
		}

		// Damped, capped update.
		for i := 0; i < n; i++ {
			dx, dy := fx[i]*damping, fy[i]*damping
			if disp := math.Hypot(dx, dy); disp > maxDisplacement {
				dx = dx / disp * maxDisplacement
				dy = dy / disp * maxDisplacement
			}
			nodes[i].Position.X += dx
			nodes[i].Position.Y += dy
		}
	}

	// Positions must stay finite whatever the force balance did.
	for i := range nodes {
		if !isFinite(nodes[i].Position.X) || !isFinite(nodes[i].Position.Y) {
			angle := 2 * math.Pi * float64(i) / float64(n)
			nodes[i].Position.X = layoutCenterX + layoutRadius*math.Cos(angle)
			nodes[i].Position.Y = layoutCenterY + layoutRadius*math.Sin(angle)
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
