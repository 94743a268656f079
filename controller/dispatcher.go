package controller

import (
	"context"
	"time"

	"github.com/phx1999/SDN/routing"

	log "github.com/sirupsen/logrus"
)

// Sink receives every table the dispatcher produces.
type Sink interface {
	Publish(ctx context.Context, table *routing.FlowTable) error
}

// Journal records accepted events so the graph can be rebuilt after a restart.
type Journal interface {
	Append(ctx context.Context, ev Event) error
	Load(ctx context.Context) ([]Event, error)
}

// Compactor is implemented by journals that can replace their content with
// an equivalent, shorter event list.
type Compactor interface {
	Compact(ctx context.Context, events []Event) error
}

// DoneFunc is called on the dispatcher goroutine once a queued event has been
// handled. err is the journal error; it is nil when the event was journaled
// (or there is no journal) and when the event was rejected.
type DoneFunc func(err error)

const (
	DefaultEventBuffer = 256

	drainTimeout = 10 * time.Second
)

type request struct {
	ev   Event
	done DoneFunc
}

// Dispatcher applies topology events one at a time on a single goroutine and
// recomputes the flow table after each change.
type Dispatcher struct {
	manager *routing.Manager
	events  chan request
	journal Journal
	sinks   []Sink
}

// NewDispatcher creates a dispatcher. journal may be nil.
func NewDispatcher(manager *routing.Manager, buffer int, journal Journal, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Dispatcher{
		manager: manager,
		events:  make(chan request, buffer),
		journal: journal,
		sinks:   sinks,
	}
}

func (d *Dispatcher) Manager() *routing.Manager { return d.manager }

// Submit queues an event, blocking while the buffer is full.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) error {
	return d.SubmitFunc(ctx, ev, nil)
}

// SubmitFunc queues an event like Submit and calls done once it has been
// handled. done is never called for an event that is still queued when the
// process exits.
func (d *Dispatcher) SubmitFunc(ctx context.Context, ev Event, done DoneFunc) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	select {
	case d.events <- request{ev: ev, done: done}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued events until ctx is cancelled. Events already queued
// at that point are still applied and journaled before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Infof("event dispatcher started, buffer: %d, sinks: %d", cap(d.events), len(d.sinks))
	for {
		select {
		case <-ctx.Done():
			d.drain(ctx)
			log.Infof("event dispatcher shutting down")
			return nil
		case req := <-d.events:
			if d.handle(ctx, req) {
				d.publish(ctx, d.manager.Recompute())
			}
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	drained, changed := 0, false
loop:
	for {
		select {
		case req := <-d.events:
			drained++
			if d.handle(ctx, req) {
				changed = true
			}
		default:
			break loop
		}
	}
	if drained == 0 {
		return
	}
	log.Infof("event dispatcher drained %d pending events", drained)
	if changed {
		d.publish(ctx, d.manager.Recompute())
	}
}

// handle applies and journals one event and reports whether a recomputation
// is due.
func (d *Dispatcher) handle(ctx context.Context, req request) bool {
	ev := req.ev
	changed, err := ev.Apply(d.manager)
	if err != nil {
		log.Warningf("rejected event %s: %v", ev, err)
		req.finish(nil)
		return false
	}
	log.Infof("applied event %s", ev)

	var journalErr error
	if d.journal != nil {
		// an applied event is journaled even while shutting down
		if journalErr = d.journal.Append(context.WithoutCancel(ctx), ev); journalErr != nil {
			log.Errorf("failed to journal event %s: %v", ev, journalErr)
		}
	}
	req.finish(journalErr)
	return changed
}

func (r request) finish(err error) {
	if r.done != nil {
		r.done(err)
	}
}

// Replay applies previously journaled events without journaling them again,
// then recomputes once and publishes the result.
func (d *Dispatcher) Replay(ctx context.Context, events []Event) *routing.FlowTable {
	applied := 0
	for _, ev := range events {
		if _, err := ev.Apply(d.manager); err != nil {
			log.Warningf("replay: skipped event %s: %v", ev, err)
			continue
		}
		applied++
	}
	log.Infof("replay: applied %d of %d journaled events", applied, len(events))

	table := d.manager.Recompute()
	d.publish(ctx, table)
	return table
}

// Restore loads the journal and replays it. Without a journal it only
// publishes the current table. A journal that supports compaction is then
// rewritten as the events that rebuild the restored graph, if that is shorter.
func (d *Dispatcher) Restore(ctx context.Context) (*routing.FlowTable, error) {
	if d.journal == nil {
		return d.Replay(ctx, nil), nil
	}
	events, err := d.journal.Load(ctx)
	if err != nil {
		return nil, err
	}
	table := d.Replay(ctx, events)

	// orphaned hosts cannot be expressed as events, so their history is kept
	if compactor, ok := d.journal.(Compactor); ok && len(d.manager.Graph().OrphanHosts()) == 0 {
		snapshot := SnapshotEvents(d.manager.Graph())
		if len(snapshot) < len(events) {
			if err := compactor.Compact(ctx, snapshot); err != nil {
				log.Errorf("failed to compact journal: %v", err)
			} else {
				log.Infof("journal compacted from %d to %d events", len(events), len(snapshot))
			}
		}
	}
	return table, nil
}

func (d *Dispatcher) publish(ctx context.Context, table *routing.FlowTable) {
	for _, sink := range d.sinks {
		if err := sink.Publish(ctx, table); err != nil {
			log.Errorf("failed to publish flow table generation %d: %v", table.Generation(), err)
		}
	}
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debug("\n" + routing.FormatReport(table))
	}
}
