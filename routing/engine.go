package routing

import (
	"container/heap"
	"slices"
	"sync"

	"github.com/phx1999/SDN/topology"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"
)

// Topology is the read-only switch graph the engine runs over.
// *topology.View implements it.
type Topology interface {
	Switches() []topology.DPID
	Neighbors(id topology.DPID) []topology.Adjacency
	Hosts() []topology.Host
	Links() []topology.Link
}

// Tree is the hop-count shortest-path tree of one root switch. Switches not
// reachable from Root are absent.
type Tree struct {
	Root topology.DPID
	pred map[topology.DPID]topology.DPID
	dist map[topology.DPID]int
}

// Distance returns the hop count from Root to dst.
func (t *Tree) Distance(dst topology.DPID) (int, bool) {
	d, ok := t.dist[dst]
	return d, ok
}

// Predecessor returns the node before dst on the path from Root. Root itself
// has no predecessor.
func (t *Tree) Predecessor(dst topology.DPID) (topology.DPID, bool) {
	p, ok := t.pred[dst]
	return p, ok
}

// Reachable returns every switch in the tree, Root included, in ascending order.
func (t *Tree) Reachable() []topology.DPID {
	ids := make([]topology.DPID, 0, len(t.dist))
	for id := range t.dist {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NextHop returns Root's immediate successor on the path to dst: the node
// whose predecessor is Root.
func (t *Tree) NextHop(dst topology.DPID) (topology.DPID, bool) {
	cur := dst
	for steps := 0; steps <= len(t.pred); steps++ {
		p, ok := t.pred[cur]
		if !ok {
			return 0, false
		}
		if p == t.Root {
			return cur, true
		}
		cur = p
	}
	log.Panicf("NextHop: predecessor cycle in tree of root %d at %d", t.Root, dst)
	return 0, false
}

// Path returns the switch sequence Root..dst, nil when dst is unreachable.
func (t *Tree) Path(dst topology.DPID) []topology.DPID {
	d, ok := t.dist[dst]
	if !ok {
		return nil
	}
	path := make([]topology.DPID, d+1)
	cur := dst
	for i := d; i > 0; i-- {
		path[i] = cur
		cur = t.pred[cur]
	}
	path[0] = cur
	if cur != t.Root {
		log.Panicf("Path: walk from %d ended at %d, not root %d", dst, cur, t.Root)
	}
	return path
}

type queueItem struct {
	dist int
	id   topology.DPID
}

// priority queue ordered by (distance, switch id)
type queue []queueItem

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(queueItem)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// ShortestPathTree runs a unit-weight Dijkstra search from root over the
// switches of topo.
func ShortestPathTree(topo Topology, root topology.DPID) *Tree {
	return shortestPathTree(topo, root, switchSet(topo))
}

func switchSet(topo Topology) map[topology.DPID]struct{} {
	switches := topo.Switches()
	known := make(map[topology.DPID]struct{}, len(switches))
	for _, id := range switches {
		known[id] = struct{}{}
	}
	return known
}

// Equal-length candidates are settled in (distance, id) order and only a
// strictly shorter path replaces a predecessor, so a destination keeps the
// first-settled predecessor. That is not always the smallest first hop.
func shortestPathTree(topo Topology, root topology.DPID, known map[topology.DPID]struct{}) *Tree {
	t := &Tree{
		Root: root,
		pred: make(map[topology.DPID]topology.DPID),
		dist: map[topology.DPID]int{root: 0},
	}

	pq := &queue{{dist: 0, id: root}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queueItem)
		if cur.dist > t.dist[cur.id] {
			continue // stale entry
		}
		for _, adj := range topo.Neighbors(cur.id) {
			if _, ok := known[adj.Neighbor]; !ok {
				log.Panicf("shortestPathTree: switch %d has adjacency to %d which is not a switch of the topology",
					cur.id, adj.Neighbor)
			}
			next := cur.dist + 1
			if d, seen := t.dist[adj.Neighbor]; !seen || next < d {
				t.dist[adj.Neighbor] = next
				t.pred[adj.Neighbor] = cur.id
				heap.Push(pq, queueItem{dist: next, id: adj.Neighbor})
			}
		}
	}
	return t
}

// Engine computes one Tree per switch. Roots are independent, so they are
// spread over the worker pool; each result lands in its own slot.
type Engine struct {
	pool *ants.Pool
}

// NewEngine returns an engine backed by pool. A nil pool computes roots
// sequentially on the caller's goroutine.
func NewEngine(pool *ants.Pool) *Engine {
	return &Engine{pool: pool}
}

// ComputeTrees returns the tree of every switch in topo. A structural fault
// found on a pool worker is re-raised on the calling goroutine.
func (e *Engine) ComputeTrees(topo Topology) map[topology.DPID]*Tree {
	switches := topo.Switches()
	known := switchSet(topo)
	trees := make([]*Tree, len(switches))

	if e.pool == nil || len(switches) < 2 {
		for i, root := range switches {
			trees[i] = shortestPathTree(topo, root, known)
		}
		return collectTrees(switches, trees)
	}

	var (
		wg        sync.WaitGroup
		fault     any
		faultOnce sync.Once
	)
	for i, root := range switches {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					faultOnce.Do(func() { fault = r })
				}
			}()
			trees[i] = shortestPathTree(topo, root, known)
		}
		if err := e.pool.Submit(task); err != nil {
			log.Warnf("ComputeTrees: failed to submit root %d to pool: %v, computing inline", root, err)
			task()
		}
	}
	wg.Wait()

	if fault != nil {
		panic(fault)
	}
	return collectTrees(switches, trees)
}

func collectTrees(switches []topology.DPID, trees []*Tree) map[topology.DPID]*Tree {
	result := make(map[topology.DPID]*Tree, len(switches))
	for i, root := range switches {
		result[root] = trees[i]
	}
	return result
}
