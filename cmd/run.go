package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/phx1999/SDN/common"
	"github.com/phx1999/SDN/controller"
	"github.com/phx1999/SDN/etcd"
	"github.com/phx1999/SDN/journal"
	"github.com/phx1999/SDN/routing"
	"github.com/phx1999/SDN/storage"
	"github.com/phx1999/SDN/structs"
	"github.com/phx1999/SDN/topology"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type stack struct {
	dispatcher *controller.Dispatcher
	publisher  *etcd.FlowPublisher
	watcher    *etcd.EventWatcher
	closers    []func()
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildStack wires the manager, its sinks and the event journal from cfg.
func buildStack(cfg *structs.Config) (*stack, error) {
	s := &stack{}

	pool, err := common.NewPool(common.PoolConfig{MaxWorkers: cfg.Controller.ComputeWorkers})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, pool.Release)
	manager := routing.NewManager(topology.NewGraph(), routing.NewEngine(pool))

	var sinks []controller.Sink
	var etcdClient *clientv3.Client
	if cfg.Storage.Enabled {
		fm, err := storage.NewFileManager(cfg.Storage.DataDir)
		if err != nil {
			s.close()
			return nil, err
		}
		sinks = append(sinks, fm)
	}

	if cfg.Etcd.Enabled {
		client, err := etcd.NewClient(etcd.EtcdConfig{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: time.Duration(cfg.Etcd.DialTimeoutSeconds) * time.Second,
			Prefix:      cfg.Etcd.Prefix,
		})
		if err != nil {
			s.close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.publisher = etcd.NewFlowPublisher(client, cfg.Etcd.Prefix)
		sinks = append(sinks, s.publisher)
		etcdClient = client
	}

	var eventJournal controller.Journal
	if cfg.Redis.Enabled {
		j := journal.NewRedisJournal(journal.NewPool(cfg.Redis.Address), cfg.Redis.Key)
		s.closers = append(s.closers, func() { _ = j.Close() })
		eventJournal = j
	}

	s.dispatcher = controller.NewDispatcher(manager, cfg.Controller.EventBuffer, eventJournal, sinks...)
	if etcdClient != nil {
		s.watcher = etcd.NewEventWatcher(etcdClient, etcdClient, cfg.Etcd.Prefix, s.dispatcher)
	}
	return s, nil
}

func runController(ctx context.Context, cfg *structs.Config) error {
	s, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var health *healthServer
	if cfg.Health.Listen != "" {
		health, err = newHealthServer(cfg.Health.Listen)
		if err != nil {
			return err
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			health.serve()
		}()
		go func() {
			defer wg.Done()
			health.follow(ctx, s.dispatcher.Manager().Updates())
		}()
	}

	if s.publisher != nil {
		// agents watch the generation key for increases
		if generation, err := s.publisher.PublishedGeneration(ctx); err != nil {
			log.Warningf("failed to read published generation: %v", err)
		} else {
			s.dispatcher.Manager().ResumeGeneration(generation)
		}
	}

	table, err := s.dispatcher.Restore(ctx)
	if err != nil {
		log.Errorf("failed to restore topology from journal, starting empty: %v", err)
		table = s.dispatcher.Replay(ctx, nil)
	}
	log.Infof("topology restored, generation %d, switches: %d", table.Generation(), len(table.Switches()))

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.dispatcher.Run(ctx)
	}()

	if s.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.watcher.Run(ctx); err != nil {
				log.Errorf("etcd event watcher stopped: %v", err)
				cancel()
			}
		}()
	}

	log.Infof("sdnroute init success")

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	select {
	case sig := <-signalChan:
		log.Infof("received signal %v, shutting down", sig)
	case <-ctx.Done():
		log.Infof("context done, shutting down")
	}
	cancel()
	if health != nil {
		health.stop()
	}
	wg.Wait()
	return nil
}

func printReport(ctx context.Context, out io.Writer, cfg *structs.Config) error {
	cfg.Etcd.Enabled = false
	cfg.Storage.Enabled = false
	s, err := buildStack(cfg)
	if err != nil {
		return err
	}
	defer s.close()

	table, err := s.dispatcher.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore topology: %w", err)
	}
	_, err = io.WriteString(out, routing.FormatReport(table))
	return err
}
