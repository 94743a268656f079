package routing

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/phx1999/SDN/topology"

	log "github.com/sirupsen/logrus"
)

// ErrNoRoute means the destination is not reachable. It is a normal query
// outcome, not a computation failure.
var ErrNoRoute = errors.New("no route")

type FlowKey struct {
	Root topology.DPID
	Dst  topology.DPID
}

// FlowEntry is the port Root transmits on to start a shortest path to Dst.
type FlowEntry struct {
	Root    topology.DPID   `json:"root"`
	Dst     topology.DPID   `json:"dst"`
	Port    topology.PortNo `json:"port"`
	NextHop topology.DPID   `json:"next_hop"`
}

type HostLocation struct {
	Switch topology.DPID   `json:"switch"`
	Port   topology.PortNo `json:"port"`
}

type HostEntry struct {
	MAC topology.HostID `json:"mac"`
	HostLocation
}

// HostRule tells Switch to forward frames for MAC out of Port.
type HostRule struct {
	Switch topology.DPID   `json:"switch"`
	MAC    topology.HostID `json:"mac"`
	Port   topology.PortNo `json:"port"`
}

// FlowTable is the immutable result of one recomputation.
type FlowTable struct {
	generation uint64
	switches   []topology.DPID
	known      map[topology.DPID]struct{}
	egress     map[FlowKey]FlowEntry
	hosts      map[topology.HostID]HostLocation
	trees      map[topology.DPID]*Tree
	links      []topology.Link
}

// BuildFlowTable derives the egress port of every (root, destination) pair
// from the trees. The port is the root's own adjacency port toward its
// immediate successor on the path, found by walking predecessors back from
// the destination.
func BuildFlowTable(topo Topology, trees map[topology.DPID]*Tree) *FlowTable {
	switches := slices.Clone(topo.Switches())
	ft := &FlowTable{
		switches: switches,
		known:    make(map[topology.DPID]struct{}, len(switches)),
		egress:   make(map[FlowKey]FlowEntry),
		hosts:    make(map[topology.HostID]HostLocation),
		trees:    trees,
		links:    slices.Clone(topo.Links()),
	}
	for _, id := range switches {
		ft.known[id] = struct{}{}
	}

	for _, root := range switches {
		tree, ok := trees[root]
		if !ok {
			log.Panicf("BuildFlowTable: no shortest-path tree for switch %d", root)
		}
		ports := make(map[topology.DPID]topology.PortNo)
		for _, adj := range topo.Neighbors(root) {
			ports[adj.Neighbor] = adj.Port
		}
		for _, dst := range tree.Reachable() {
			if dst == root {
				continue
			}
			hop, ok := tree.NextHop(dst)
			if !ok {
				log.Panicf("BuildFlowTable: %d is in the tree of %d but has no path back to it", dst, root)
			}
			port, ok := ports[hop]
			if !ok {
				log.Panicf("BuildFlowTable: switch %d has no adjacency port toward next hop %d", root, hop)
			}
			ft.egress[FlowKey{Root: root, Dst: dst}] = FlowEntry{Root: root, Dst: dst, Port: port, NextHop: hop}
		}
	}

	for _, h := range topo.Hosts() {
		if _, ok := ft.known[h.Switch]; !ok {
			log.Debugf("BuildFlowTable: host %s is attached to missing switch %d, skipped", h.MAC, h.Switch)
			continue
		}
		ft.hosts[h.MAC] = HostLocation{Switch: h.Switch, Port: h.Port}
	}
	return ft
}

// Generation is the recomputation counter of the Manager that built the table.
func (ft *FlowTable) Generation() uint64 { return ft.generation }

func (ft *FlowTable) HasSwitch(id topology.DPID) bool {
	_, ok := ft.known[id]
	return ok
}

func (ft *FlowTable) Switches() []topology.DPID { return slices.Clone(ft.switches) }

func (ft *FlowTable) Links() []topology.Link { return slices.Clone(ft.links) }

func (ft *FlowTable) Tree(root topology.DPID) (*Tree, bool) {
	t, ok := ft.trees[root]
	return t, ok
}

// EgressPort returns the port root uses toward dst. A switch the table does
// not know yields topology.ErrUnknownSwitch; an unreachable one, or dst ==
// root, yields ErrNoRoute.
func (ft *FlowTable) EgressPort(root, dst topology.DPID) (topology.PortNo, error) {
	e, err := ft.Entry(root, dst)
	if err != nil {
		return 0, err
	}
	return e.Port, nil
}

func (ft *FlowTable) Entry(root, dst topology.DPID) (FlowEntry, error) {
	for _, id := range []topology.DPID{root, dst} {
		if !ft.HasSwitch(id) {
			return FlowEntry{}, fmt.Errorf("%w: %d", topology.ErrUnknownSwitch, id)
		}
	}
	e, ok := ft.egress[FlowKey{Root: root, Dst: dst}]
	if !ok {
		return FlowEntry{}, fmt.Errorf("%w: %d -> %d", ErrNoRoute, root, dst)
	}
	return e, nil
}

func (ft *FlowTable) HostLocation(mac topology.HostID) (HostLocation, error) {
	loc, ok := ft.hosts[mac]
	if !ok {
		return HostLocation{}, fmt.Errorf("%w: %s", topology.ErrUnknownHost, mac)
	}
	return loc, nil
}

// RouteToHost returns the port sw forwards frames for mac on: the attachment
// port on the attachment switch, the switch-to-switch egress port elsewhere.
func (ft *FlowTable) RouteToHost(sw topology.DPID, mac topology.HostID) (topology.PortNo, error) {
	loc, err := ft.HostLocation(mac)
	if err != nil {
		return 0, err
	}
	if !ft.HasSwitch(sw) {
		return 0, fmt.Errorf("%w: %d", topology.ErrUnknownSwitch, sw)
	}
	if sw == loc.Switch {
		return loc.Port, nil
	}
	return ft.EgressPort(sw, loc.Switch)
}

// Entries returns all switch-to-switch entries ordered by (root, dst).
func (ft *FlowTable) Entries() []FlowEntry {
	entries := make([]FlowEntry, 0, len(ft.egress))
	for _, e := range ft.egress {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(x, y FlowEntry) int {
		if c := cmp.Compare(x.Root, y.Root); c != 0 {
			return c
		}
		return cmp.Compare(x.Dst, y.Dst)
	})
	return entries
}

// EntriesFrom returns the entries whose root is root, ordered by dst.
func (ft *FlowTable) EntriesFrom(root topology.DPID) []FlowEntry {
	var entries []FlowEntry
	for _, e := range ft.Entries() {
		if e.Root == root {
			entries = append(entries, e)
		}
	}
	return entries
}

// Hosts returns the host locations ordered by MAC.
func (ft *FlowTable) Hosts() []HostEntry {
	hosts := make([]HostEntry, 0, len(ft.hosts))
	for mac, loc := range ft.hosts {
		hosts = append(hosts, HostEntry{MAC: mac, HostLocation: loc})
	}
	slices.SortFunc(hosts, func(x, y HostEntry) int { return cmp.Compare(x.MAC, y.MAC) })
	return hosts
}

// Rules returns, for every switch and host, the output port the switch uses
// for that host. Pairs without a route are omitted.
func (ft *FlowTable) Rules() []HostRule {
	hosts := ft.Hosts()
	var rules []HostRule
	for _, sw := range ft.switches {
		for _, h := range hosts {
			port, err := ft.RouteToHost(sw, h.MAC)
			if err != nil {
				continue
			}
			rules = append(rules, HostRule{Switch: sw, MAC: h.MAC, Port: port})
		}
	}
	return rules
}

// RulesFor returns the host rules installed on sw.
func (ft *FlowTable) RulesFor(sw topology.DPID) []HostRule {
	var rules []HostRule
	for _, h := range ft.Hosts() {
		if port, err := ft.RouteToHost(sw, h.MAC); err == nil {
			rules = append(rules, HostRule{Switch: sw, MAC: h.MAC, Port: port})
		}
	}
	return rules
}

type flowTableJSON struct {
	Switches []topology.DPID `json:"switches"`
	Entries  []FlowEntry     `json:"entries"`
	Hosts    []HostEntry     `json:"hosts"`
	Links    []topology.Link `json:"links"`
}

// MarshalJSON encodes the routing content in canonical order. The generation
// is left out, so tables computed from the same topology encode identically.
func (ft *FlowTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(flowTableJSON{
		Switches: ft.Switches(),
		Entries:  ft.Entries(),
		Hosts:    ft.Hosts(),
		Links:    ft.Links(),
	})
}
