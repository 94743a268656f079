package topology

// View is a read-only copy of the graph taken by Graph.Snapshot. Slices it
// returns are shared and must not be modified.
type View struct {
	switches  []DPID
	adjacency map[DPID][]Adjacency
	hosts     []Host
	links     []Link
}

func (v *View) Switches() []DPID { return v.switches }

// Neighbors returns the adjacency of id ordered by neighbour id, nil for an
// unknown switch.
func (v *View) Neighbors(id DPID) []Adjacency { return v.adjacency[id] }

func (v *View) HasSwitch(id DPID) bool {
	_, ok := v.adjacency[id]
	return ok
}

func (v *View) Hosts() []Host { return v.hosts }

func (v *View) Links() []Link { return v.links }
