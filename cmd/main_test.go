package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/phx1999/SDN/middleware"
	"github.com/phx1999/SDN/routing"
	"github.com/phx1999/SDN/topology"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("SDN_CONFIG", "")
	configPath = ""
	assert.Equal(t, middleware.DefaultConfigPath, resolveConfigPath())

	t.Setenv("SDN_CONFIG", "/etc/sdnroute/prod.toml")
	assert.Equal(t, "/etc/sdnroute/prod.toml", resolveConfigPath())

	configPath = "local.toml"
	t.Cleanup(func() { configPath = "" })
	assert.Equal(t, "local.toml", resolveConfigPath())
}

func TestHealthServerFollowsUpdates(t *testing.T) {
	h, err := newHealthServer("127.0.0.1:0")
	require.NoError(t, err)
	go h.serve()
	defer h.stop()

	conn, err := grpc.NewClient(h.listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: healthService})
		if err != nil {
			return healthpb.HealthCheckResponse_UNKNOWN
		}
		return resp.GetStatus()
	}
	require.Eventually(t, func() bool {
		return check() == healthpb.HealthCheckResponse_NOT_SERVING
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan *routing.FlowTable, 1)
	go h.follow(ctx, updates)

	updates <- routing.NewManager(topology.NewGraph(), nil).Recompute()
	assert.Eventually(t, func() bool {
		return check() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPrintReportWithoutJournal(t *testing.T) {
	cfg := middleware.DefaultConfig()
	cfg.Controller.ComputeWorkers = 2

	var out bytes.Buffer
	require.NoError(t, printReport(context.Background(), &out, cfg))
	assert.Contains(t, out.String(), "@@@ FLOW TABLE START (generation 1) @@@")
	assert.Contains(t, out.String(), "&&& TOPOLOGY END &&&")
}
