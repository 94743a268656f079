package routing

import (
	"sync"
	"testing"

	"github.com/phx1999/SDN/topology"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return NewManager(topology.NewGraph(), NewEngine(pool))
}

func TestManagerEndToEnd(t *testing.T) {
	m := newTestManager(t)

	// empty before the first recomputation
	assert.Zero(t, m.Table().Generation())
	assert.Empty(t, m.Table().Entries())

	for _, id := range []topology.DPID{1, 2, 3} {
		require.NoError(t, m.AddSwitch(id))
	}
	assert.ErrorIs(t, m.AddSwitch(2), topology.ErrDuplicateSwitch)
	require.NoError(t, m.AddLink(1, 1, 2, 1))
	require.NoError(t, m.AddLink(2, 2, 3, 1))
	require.NoError(t, m.AddHost(topology.Host{MAC: "H", Switch: 3, Port: 5}))

	// queries read the latest table, not the live graph
	_, err := m.EgressPort(1, 3)
	assert.ErrorIs(t, err, topology.ErrUnknownSwitch)

	table := m.Recompute()
	assert.Equal(t, uint64(1), table.Generation())
	assert.Same(t, table, m.Table())

	port, err := m.EgressPort(1, 3)
	require.NoError(t, err)
	assert.Equal(t, topology.PortNo(1), port)
	port, err = m.EgressPort(2, 3)
	require.NoError(t, err)
	assert.Equal(t, topology.PortNo(2), port)

	loc, err := m.HostLocation("H")
	require.NoError(t, err)
	assert.Equal(t, HostLocation{Switch: 3, Port: 5}, loc)

	port, err = m.RouteToHost(1, "H")
	require.NoError(t, err)
	assert.Equal(t, topology.PortNo(1), port)

	assert.Equal(t, []Edge{{A: 1, B: 2}, {A: 2, B: 3}}, m.Edges())

	paths, err := m.PathFrom(1)
	require.NoError(t, err)
	assert.Equal(t, []topology.DPID{1, 2, 3}, paths[3])

	assert.True(t, m.RemoveLink(2, 3))
	m.Recompute()
	_, err = m.EgressPort(1, 3)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Equal(t, uint64(2), m.Table().Generation())
}

func TestManagerRemoveSwitch(t *testing.T) {
	m := newTestManager(t)
	for _, id := range []topology.DPID{1, 2, 3} {
		require.NoError(t, m.AddSwitch(id))
	}
	require.NoError(t, m.AddLink(1, 1, 2, 1))
	require.NoError(t, m.AddLink(2, 2, 3, 1))
	m.Recompute()

	require.NoError(t, m.RemoveSwitch(2))
	assert.ErrorIs(t, m.RemoveSwitch(2), topology.ErrUnknownSwitch)
	m.Recompute()

	_, err := m.EgressPort(1, 2)
	assert.ErrorIs(t, err, topology.ErrUnknownSwitch)
	_, err = m.EgressPort(1, 3)
	assert.ErrorIs(t, err, ErrNoRoute)
	_, err = m.PathFrom(2)
	assert.ErrorIs(t, err, topology.ErrUnknownSwitch)
	assert.Empty(t, m.Edges())
}

func TestManagerPortDownAndHosts(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddSwitch(1))
	require.NoError(t, m.AddSwitch(2))
	require.NoError(t, m.AddLink(1, 3, 2, 4))
	require.NoError(t, m.AddHost(topology.Host{MAC: "x", Switch: 1, Port: 9}))

	removed, err := m.PortDown(2, 4)
	require.NoError(t, err)
	assert.True(t, removed)
	m.Recompute()
	_, err = m.EgressPort(1, 2)
	assert.ErrorIs(t, err, ErrNoRoute)

	require.NoError(t, m.RemoveHost("x"))
	assert.ErrorIs(t, m.RemoveHost("x"), topology.ErrUnknownHost)
	m.Recompute()
	_, err = m.HostLocation("x")
	assert.ErrorIs(t, err, topology.ErrUnknownHost)
}

func TestManagerUpdatesKeepsNewest(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddSwitch(1))

	m.Recompute()
	m.Recompute()
	third := m.Recompute()

	got := <-m.Updates()
	assert.Same(t, third, got)
	select {
	case extra := <-m.Updates():
		t.Fatalf("unexpected extra table, generation %d", extra.Generation())
	default:
	}
}

func TestManagerConcurrentReaders(t *testing.T) {
	m := newTestManager(t)
	for id := topology.DPID(1); id <= 10; id++ {
		require.NoError(t, m.AddSwitch(id))
	}
	for id := topology.DPID(1); id < 10; id++ {
		require.NoError(t, m.AddLink(id, 2, id+1, 1))
	}
	m.Recompute()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				// every table is complete: 10 switches in a line always route 1 -> 10
				table := m.Table()
				if table.HasSwitch(10) {
					if _, err := table.EgressPort(1, 10); err != nil {
						t.Errorf("torn table at generation %d: %v", table.Generation(), err)
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		m.Recompute()
	}
	close(stop)
	wg.Wait()
}

func TestManagerResumeGeneration(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddSwitch(1))

	m.ResumeGeneration(41)
	assert.Equal(t, uint64(42), m.Recompute().Generation())

	m.ResumeGeneration(7)
	assert.Equal(t, uint64(43), m.Recompute().Generation(), "a lower generation is ignored")
}
