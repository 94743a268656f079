package routing

import (
	"math/rand"
	"testing"

	"github.com/phx1999/SDN/topology"

	"github.com/stretchr/testify/require"
)

type testLink struct {
	a  topology.DPID
	pa topology.PortNo
	b  topology.DPID
	pb topology.PortNo
}

func buildGraph(t *testing.T, switches []topology.DPID, links []testLink) *topology.Graph {
	t.Helper()
	g := topology.NewGraph()
	for _, id := range switches {
		require.NoError(t, g.AddSwitch(id))
	}
	for _, l := range links {
		require.NoError(t, g.AddLink(l.a, l.pa, l.b, l.pb))
	}
	return g
}

func recompute(g *topology.Graph) *FlowTable {
	v := g.Snapshot()
	return BuildFlowTable(v, NewEngine(nil).ComputeTrees(v))
}

// randomGraph builds n switches where each pair is linked with probability
// density. Ports are numbered per switch from 1.
func randomGraph(t *testing.T, n int, rng *rand.Rand, density float64) *topology.Graph {
	t.Helper()
	switches := make([]topology.DPID, n)
	for i := range switches {
		switches[i] = topology.DPID(i + 1)
	}
	nextPort := make(map[topology.DPID]topology.PortNo)
	var links []testLink
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Float64() >= density {
				continue
			}
			a, b := switches[i], switches[j]
			nextPort[a]++
			nextPort[b]++
			links = append(links, testLink{a: a, pa: nextPort[a], b: b, pb: nextPort[b]})
		}
	}
	return buildGraph(t, switches, links)
}

// bfsDistances is an independent oracle over the Graph Store.
func bfsDistances(t *testing.T, g *topology.Graph, root topology.DPID) map[topology.DPID]int {
	t.Helper()
	dist := map[topology.DPID]int{root: 0}
	frontier := []topology.DPID{root}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		adj, err := g.Neighbors(cur)
		require.NoError(t, err)
		for _, a := range adj {
			if _, seen := dist[a.Neighbor]; !seen {
				dist[a.Neighbor] = dist[cur] + 1
				frontier = append(frontier, a.Neighbor)
			}
		}
	}
	return dist
}

// neighborOnPort resolves which switch sits behind port of sw.
func neighborOnPort(t *testing.T, g *topology.Graph, sw topology.DPID, port topology.PortNo) topology.DPID {
	t.Helper()
	adj, err := g.Neighbors(sw)
	require.NoError(t, err)
	for _, a := range adj {
		if a.Port == port {
			return a.Neighbor
		}
	}
	t.Fatalf("switch %d has nothing on port %d", sw, port)
	return 0
}

// walkHops follows egress ports hop by hop from src to dst.
func walkHops(t *testing.T, g *topology.Graph, ft *FlowTable, src, dst topology.DPID) int {
	t.Helper()
	hops := 0
	for cur := src; cur != dst; hops++ {
		require.LessOrEqual(t, hops, g.SwitchCount(), "forwarding loop from %d to %d", src, dst)
		port, err := ft.EgressPort(cur, dst)
		require.NoError(t, err, "hop %d at switch %d toward %d", hops, cur, dst)
		cur = neighborOnPort(t, g, cur, port)
	}
	return hops
}
