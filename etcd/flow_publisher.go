package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/phx1999/SDN/routing"
	"github.com/phx1999/SDN/topology"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// SwitchRules is what a switch agent reads from <prefix>/rules/<dpid>.
type SwitchRules struct {
	Switch     topology.DPID       `json:"switch"`
	Generation uint64              `json:"generation"`
	Entries    []routing.FlowEntry `json:"entries"`
	Hosts      []routing.HostRule  `json:"hosts"`
}

// FlowPublisher writes each flow table to etcd for the switch agents.
// The generation key is written last so a watcher on it sees a complete table.
type FlowPublisher struct {
	kv     clientv3.KV
	prefix string
}

func NewFlowPublisher(kv clientv3.KV, prefix string) *FlowPublisher {
	return &FlowPublisher{kv: kv, prefix: normalizePrefix(prefix)}
}

func (p *FlowPublisher) TableKey() string      { return p.prefix + "/flow_table" }
func (p *FlowPublisher) GenerationKey() string { return p.prefix + "/generation" }
func (p *FlowPublisher) rulesPrefix() string   { return p.prefix + "/rules/" }

func (p *FlowPublisher) RulesKey(id topology.DPID) string {
	return p.rulesPrefix() + strconv.FormatUint(uint64(id), 10)
}

func (p *FlowPublisher) Publish(ctx context.Context, table *routing.FlowTable) error {
	tableJSON, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to marshal flow table: %w", err)
	}
	if _, err := p.kv.Put(ctx, p.TableKey(), string(tableJSON)); err != nil {
		return fmt.Errorf("failed to publish flow table: %w", err)
	}

	current := make(map[string]struct{})
	for _, id := range table.Switches() {
		rules := SwitchRules{
			Switch:     id,
			Generation: table.Generation(),
			Entries:    table.EntriesFrom(id),
			Hosts:      table.RulesFor(id),
		}
		rulesJSON, err := json.Marshal(rules)
		if err != nil {
			return fmt.Errorf("failed to marshal rules of switch %d: %w", id, err)
		}
		key := p.RulesKey(id)
		if _, err := p.kv.Put(ctx, key, string(rulesJSON)); err != nil {
			return fmt.Errorf("failed to publish rules of switch %d: %w", id, err)
		}
		current[key] = struct{}{}
	}

	if err := p.deleteStaleRules(ctx, current); err != nil {
		return err
	}

	generation := strconv.FormatUint(table.Generation(), 10)
	if _, err := p.kv.Put(ctx, p.GenerationKey(), generation); err != nil {
		return fmt.Errorf("failed to publish generation: %w", err)
	}

	log.Infof("flow table generation %d published to etcd, switches: %d", table.Generation(), len(current))
	return nil
}

// PublishedGeneration returns the generation last committed under the
// prefix, or 0 when nothing has been published yet.
func (p *FlowPublisher) PublishedGeneration(ctx context.Context) (uint64, error) {
	resp, err := p.kv.Get(ctx, p.GenerationKey())
	if err != nil {
		return 0, fmt.Errorf("failed to get published generation: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return 0, nil
	}
	generation, err := strconv.ParseUint(string(resp.Kvs[0].Value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid published generation %q: %w", resp.Kvs[0].Value, err)
	}
	return generation, nil
}

func (p *FlowPublisher) deleteStaleRules(ctx context.Context, current map[string]struct{}) error {
	resp, err := p.kv.Get(ctx, p.rulesPrefix(), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return fmt.Errorf("failed to list published rules: %w", err)
	}
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		if _, ok := current[key]; ok || !strings.HasPrefix(key, p.rulesPrefix()) {
			continue
		}
		if _, err := p.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete stale rules %s: %w", key, err)
		}
		log.Debugf("deleted stale rules %s", key)
	}
	return nil
}
