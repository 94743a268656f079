package etcd

import (
	"context"
	"fmt"
	"time"

	"github.com/phx1999/SDN/controller"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type Submitter interface {
	SubmitFunc(ctx context.Context, ev controller.Event, done controller.DoneFunc) error
}

const deleteTimeout = 5 * time.Second

// EventWatcher consumes topology events that switch agents put under
// <prefix>/events/. A key is deleted only after its event has been applied
// and journaled; keys left behind are picked up again on the next start.
type EventWatcher struct {
	kv        clientv3.KV
	watcher   clientv3.Watcher
	prefix    string
	submitter Submitter
}

func NewEventWatcher(kv clientv3.KV, watcher clientv3.Watcher, prefix string, submitter Submitter) *EventWatcher {
	return &EventWatcher{
		kv:        kv,
		watcher:   watcher,
		prefix:    normalizePrefix(prefix) + "/events/",
		submitter: submitter,
	}
}

func (w *EventWatcher) Prefix() string { return w.prefix }

// Run drains events already present, then watches for new ones until ctx is done.
func (w *EventWatcher) Run(ctx context.Context) error {
	resp, err := w.kv.Get(ctx, w.prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return fmt.Errorf("failed to load pending events: %w", err)
	}
	for _, kv := range resp.Kvs {
		w.handle(ctx, kv)
	}

	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if resp.Header != nil {
		opts = append(opts, clientv3.WithRev(resp.Header.Revision+1))
	}
	log.Infof("watching topology events under %s, pending: %d", w.prefix, len(resp.Kvs))

	watchChan := w.watcher.Watch(ctx, w.prefix, opts...)
	for {
		select {
		case <-ctx.Done():
			log.Infof("event watcher shutting down")
			return nil

		case resp, ok := <-watchChan:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watch channel closed")
			}
			if err := resp.Err(); err != nil {
				return fmt.Errorf("watch failed: %w", err)
			}
			for _, event := range resp.Events {
				if event.Type == clientv3.EventTypePut {
					w.handle(ctx, event.Kv)
				}
			}
		}
	}
}

func (w *EventWatcher) handle(ctx context.Context, kv *mvccpb.KeyValue) {
	key := string(kv.Key)
	ev, err := controller.DecodeEvent(kv.Value)
	if err != nil {
		log.Warningf("dropping undecodable event %s: %v", key, err)
		w.deleteKey(ctx, key)
		return
	}

	done := func(err error) {
		if err != nil {
			log.Warningf("keeping event %s until it is journaled: %v", key, err)
			return
		}
		w.deleteKey(ctx, key)
	}
	if err := w.submitter.SubmitFunc(ctx, ev, done); err != nil {
		log.Errorf("failed to submit event %s: %v", key, err)
	}
}

// deleteKey also runs while shutting down, after ctx is cancelled.
func (w *EventWatcher) deleteKey(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deleteTimeout)
	defer cancel()
	if _, err := w.kv.Delete(ctx, key); err != nil {
		log.Errorf("failed to delete consumed event %s: %v", key, err)
	}
}
