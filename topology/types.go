package topology

import "errors"

// DPID identifies a switch (OpenFlow datapath id).
type DPID uint64

// PortNo is a switch-local port number.
type PortNo uint32

// HostID is a host's link-layer address. The graph treats it as opaque.
type HostID string

var (
	ErrDuplicateSwitch = errors.New("duplicate switch")
	ErrUnknownSwitch   = errors.New("unknown switch")
	ErrUnknownHost     = errors.New("unknown host")
	ErrSelfLink        = errors.New("link endpoints are the same switch")
)

// Adjacency is one directed adjacency entry: the local port used to reach Neighbor.
type Adjacency struct {
	Neighbor DPID   `json:"neighbor"`
	Port     PortNo `json:"port"`
}

// Link is an undirected switch-to-switch link. Links returned by the graph
// always have A < B.
type Link struct {
	A     DPID   `json:"a"`
	PortA PortNo `json:"port_a"`
	B     DPID   `json:"b"`
	PortB PortNo `json:"port_b"`
}

// Host is a terminal node attached to exactly one switch port.
type Host struct {
	MAC    HostID   `json:"mac"`
	IPs    []string `json:"ips,omitempty"`
	Switch DPID     `json:"switch"`
	Port   PortNo   `json:"port"`
}

func (h Host) clone() Host {
	if h.IPs != nil {
		h.IPs = append([]string(nil), h.IPs...)
	}
	return h
}

// switchNode holds adjacency by identifier only, never by pointer to another node.
type switchNode struct {
	id        DPID
	ports     map[PortNo]DPID // local port -> neighbour on the other end
	neighbors map[DPID]PortNo // neighbour -> local egress port
}

func newSwitchNode(id DPID) *switchNode {
	return &switchNode{
		id:        id,
		ports:     make(map[PortNo]DPID),
		neighbors: make(map[DPID]PortNo),
	}
}

func (s *switchNode) attach(neighbor DPID, port PortNo) {
	s.neighbors[neighbor] = port
	s.ports[port] = neighbor
}

func (s *switchNode) detach(neighbor DPID) bool {
	port, ok := s.neighbors[neighbor]
	if !ok {
		return false
	}
	delete(s.neighbors, neighbor)
	if s.ports[port] == neighbor {
		delete(s.ports, port)
	}
	return true
}
