package topology

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Graph is the single source of truth for switches, hosts and links.
// Every mutation completes under the write lock, so readers never observe a
// half-applied change.
type Graph struct {
	switches map[DPID]*switchNode
	hosts    map[HostID]Host
	mutex    sync.RWMutex
}

func NewGraph() *Graph {
	return &Graph{
		switches: make(map[DPID]*switchNode),
		hosts:    make(map[HostID]Host),
	}
}

// AddSwitch inserts a switch with no links. Adding a known switch fails with
// ErrDuplicateSwitch and leaves the graph untouched.
func (g *Graph) AddSwitch(id DPID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, exists := g.switches[id]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateSwitch, id)
	}
	g.switches[id] = newSwitchNode(id)

	log.Debugf("AddSwitch: switch %d added, switch num: %d", id, len(g.switches))
	return nil
}

// RemoveSwitch removes the switch and every adjacency entry that points at it.
// Hosts attached to it are kept; see OrphanHosts.
func (g *Graph) RemoveSwitch(id DPID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	sw, exists := g.switches[id]
	if !exists {
		return fmt.Errorf("%w: %d", ErrUnknownSwitch, id)
	}
	for neighbor := range sw.neighbors {
		if n, ok := g.switches[neighbor]; ok {
			n.detach(id)
		}
	}
	delete(g.switches, id)

	orphans := 0
	for _, h := range g.hosts {
		if h.Switch == id {
			orphans++
		}
	}
	log.Debugf("RemoveSwitch: switch %d removed, %d neighbours detached, %d hosts orphaned",
		id, len(sw.neighbors), orphans)
	return nil
}

// AddLink records the bidirectional link a/pa <-> b/pb. An existing link
// between a and b is replaced, and any other link already cabled on pa or pb
// is dropped, since a port carries a single link.
func (g *Graph) AddLink(a DPID, pa PortNo, b DPID, pb PortNo) error {
	if a == b {
		return fmt.Errorf("%w: %d", ErrSelfLink, a)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	swA, okA := g.switches[a]
	swB, okB := g.switches[b]
	if !okA {
		return fmt.Errorf("%w: %d", ErrUnknownSwitch, a)
	}
	if !okB {
		return fmt.Errorf("%w: %d", ErrUnknownSwitch, b)
	}

	g.unlink(a, b)
	if other, ok := swA.ports[pa]; ok {
		log.Debugf("AddLink: port %d/%d recabled, dropping link to %d", a, pa, other)
		g.unlink(a, other)
	}
	if other, ok := swB.ports[pb]; ok {
		log.Debugf("AddLink: port %d/%d recabled, dropping link to %d", b, pb, other)
		g.unlink(b, other)
	}
	swA.attach(b, pa)
	swB.attach(a, pb)

	log.Debugf("AddLink: %d/%d <-> %d/%d", a, pa, b, pb)
	return nil
}

// RemoveLink deletes both directions of the a<->b link. It reports whether a
// link existed; removing a missing link is a no-op.
func (g *Graph) RemoveLink(a, b DPID) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	removed := g.unlink(a, b)
	if removed {
		log.Debugf("RemoveLink: %d <-> %d", a, b)
	}
	return removed
}

// PortDown removes the link cabled on port of switch id, if any.
func (g *Graph) PortDown(id DPID, port PortNo) (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	sw, exists := g.switches[id]
	if !exists {
		return false, fmt.Errorf("%w: %d", ErrUnknownSwitch, id)
	}
	neighbor, ok := sw.ports[port]
	if !ok {
		return false, nil
	}
	g.unlink(id, neighbor)
	log.Debugf("PortDown: %d/%d down, link to %d removed", id, port, neighbor)
	return true, nil
}

// caller holds the write lock
func (g *Graph) unlink(a, b DPID) bool {
	removed := false
	if sw, ok := g.switches[a]; ok {
		removed = sw.detach(b) || removed
	}
	if sw, ok := g.switches[b]; ok {
		removed = sw.detach(a) || removed
	}
	return removed
}

// AddHost attaches a host to a known switch port. Adding a known host again
// re-attaches it.
func (g *Graph) AddHost(h Host) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, exists := g.switches[h.Switch]; !exists {
		return fmt.Errorf("%w: %d (host %s)", ErrUnknownSwitch, h.Switch, h.MAC)
	}
	if prev, exists := g.hosts[h.MAC]; exists && (prev.Switch != h.Switch || prev.Port != h.Port) {
		log.Debugf("AddHost: host %s moved %d/%d -> %d/%d", h.MAC, prev.Switch, prev.Port, h.Switch, h.Port)
	}
	g.hosts[h.MAC] = h.clone()
	return nil
}

func (g *Graph) RemoveHost(mac HostID) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, exists := g.hosts[mac]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownHost, mac)
	}
	delete(g.hosts, mac)
	log.Debugf("RemoveHost: host %s removed", mac)
	return nil
}

func (g *Graph) HasSwitch(id DPID) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, exists := g.switches[id]
	return exists
}

// Switches returns all switch ids in ascending order.
func (g *Graph) Switches() []DPID {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.switchIDs()
}

func (g *Graph) switchIDs() []DPID {
	ids := make([]DPID, 0, len(g.switches))
	for id := range g.switches {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Neighbors returns the adjacency of id ordered by neighbour id.
func (g *Graph) Neighbors(id DPID) ([]Adjacency, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	sw, exists := g.switches[id]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSwitch, id)
	}
	return sortedAdjacency(sw), nil
}

func sortedAdjacency(sw *switchNode) []Adjacency {
	adj := make([]Adjacency, 0, len(sw.neighbors))
	for neighbor, port := range sw.neighbors {
		adj = append(adj, Adjacency{Neighbor: neighbor, Port: port})
	}
	slices.SortFunc(adj, func(x, y Adjacency) int { return cmp.Compare(x.Neighbor, y.Neighbor) })
	return adj
}

func (g *Graph) Host(mac HostID) (Host, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	h, exists := g.hosts[mac]
	if !exists {
		return Host{}, fmt.Errorf("%w: %s", ErrUnknownHost, mac)
	}
	return h.clone(), nil
}

// Hosts returns every host ordered by MAC.
func (g *Graph) Hosts() []Host {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.hostList(func(Host) bool { return true })
}

// OrphanHosts returns hosts whose attachment switch is no longer in the graph.
func (g *Graph) OrphanHosts() []Host {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.hostList(func(h Host) bool {
		_, exists := g.switches[h.Switch]
		return !exists
	})
}

func (g *Graph) hostList(keep func(Host) bool) []Host {
	hosts := make([]Host, 0, len(g.hosts))
	for _, h := range g.hosts {
		if keep(h) {
			hosts = append(hosts, h.clone())
		}
	}
	slices.SortFunc(hosts, func(x, y Host) int { return cmp.Compare(x.MAC, y.MAC) })
	return hosts
}

// Links returns every link once, A < B, sorted by (A, B).
func (g *Graph) Links() []Link {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.links()
}

func (g *Graph) links() []Link {
	var links []Link
	for _, a := range g.switchIDs() {
		swA := g.switches[a]
		for _, adj := range sortedAdjacency(swA) {
			if adj.Neighbor < a {
				continue
			}
			swB, ok := g.switches[adj.Neighbor]
			if !ok {
				continue
			}
			links = append(links, Link{A: a, PortA: adj.Port, B: adj.Neighbor, PortB: swB.neighbors[a]})
		}
	}
	return links
}

func (g *Graph) SwitchCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.switches)
}

func (g *Graph) HostCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.hosts)
}

func (g *Graph) LinkCount() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	count := 0
	for _, sw := range g.switches {
		count += len(sw.neighbors)
	}
	return count / 2
}

// Snapshot copies the current state into an immutable View.
func (g *Graph) Snapshot() *View {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	ids := g.switchIDs()
	v := &View{
		switches:  ids,
		adjacency: make(map[DPID][]Adjacency, len(ids)),
		hosts:     g.hostList(func(Host) bool { return true }),
		links:     g.links(),
	}
	for _, id := range ids {
		v.adjacency[id] = sortedAdjacency(g.switches[id])
	}
	return v
}
