package routing

import (
	"sync"
	"time"

	"github.com/phx1999/SDN/topology"

	log "github.com/sirupsen/logrus"
)

// Manager owns the Graph Store and the latest FlowTable. Mutations and
// recomputation are serialised by writeMu; readers take the latest table
// under mu and always see one complete recomputation.
type Manager struct {
	graph  *topology.Graph
	engine *Engine

	writeMu    sync.Mutex
	generation uint64

	mu     sync.RWMutex
	latest *FlowTable

	updates chan *FlowTable
}

func NewManager(graph *topology.Graph, engine *Engine) *Manager {
	if engine == nil {
		engine = NewEngine(nil)
	}
	empty := graph.Snapshot()
	return &Manager{
		graph:   graph,
		engine:  engine,
		latest:  BuildFlowTable(empty, engine.ComputeTrees(empty)),
		updates: make(chan *FlowTable, 1),
	}
}

func (m *Manager) Graph() *topology.Graph { return m.graph }

func (m *Manager) AddSwitch(id topology.DPID) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.graph.AddSwitch(id)
}

func (m *Manager) RemoveSwitch(id topology.DPID) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.graph.RemoveSwitch(id)
}

func (m *Manager) AddLink(a topology.DPID, pa topology.PortNo, b topology.DPID, pb topology.PortNo) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.graph.AddLink(a, pa, b, pb)
}

func (m *Manager) RemoveLink(a, b topology.DPID) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.graph.RemoveLink(a, b)
}

func (m *Manager) PortDown(id topology.DPID, port topology.PortNo) (bool, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.graph.PortDown(id, port)
}

func (m *Manager) AddHost(h topology.Host) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.graph.AddHost(h)
}

func (m *Manager) RemoveHost(mac topology.HostID) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.graph.RemoveHost(mac)
}

// ResumeGeneration makes the next table follow generation, so the counter
// keeps increasing across restarts. A value below the current one is ignored.
func (m *Manager) ResumeGeneration(generation uint64) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if generation > m.generation {
		log.Infof("resuming flow table generation after %d", generation)
		m.generation = generation
	}
}

// Recompute rebuilds every shortest-path tree and the flow table from the
// current graph and makes the result the latest table. It runs to completion.
func (m *Manager) Recompute() *FlowTable {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	start := time.Now()
	view := m.graph.Snapshot()
	table := BuildFlowTable(view, m.engine.ComputeTrees(view))
	m.generation++
	table.generation = m.generation

	m.mu.Lock()
	m.latest = table
	m.mu.Unlock()

	// keep only the newest table for a slow consumer
	select {
	case m.updates <- table:
	default:
		select {
		case <-m.updates:
		default:
		}
		m.updates <- table
	}

	log.Infof("Recompute: generation %d, switch num: %d, link num: %d, host num: %d, entries: %d, elapsed: %v",
		table.generation, len(view.Switches()), len(view.Links()), len(table.hosts), len(table.egress), time.Since(start))
	return table
}

// Updates delivers each new table. Only the newest undelivered table is kept.
func (m *Manager) Updates() <-chan *FlowTable { return m.updates }

// Table returns the latest table; before the first Recompute it is empty.
func (m *Manager) Table() *FlowTable {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *Manager) EgressPort(root, dst topology.DPID) (topology.PortNo, error) {
	return m.Table().EgressPort(root, dst)
}

func (m *Manager) HostLocation(mac topology.HostID) (HostLocation, error) {
	return m.Table().HostLocation(mac)
}

func (m *Manager) RouteToHost(sw topology.DPID, mac topology.HostID) (topology.PortNo, error) {
	return m.Table().RouteToHost(sw, mac)
}

// Edges reads the live Graph Store.
func (m *Manager) Edges() []Edge {
	return Edges(m.graph)
}

// PathFrom reads the trees of the latest recomputation.
func (m *Manager) PathFrom(root topology.DPID) (map[topology.DPID][]topology.DPID, error) {
	return m.Table().PathsFrom(root)
}
