package main

import (
	"context"
	"fmt"
	"net"

	"github.com/phx1999/SDN/routing"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthService = "sdnroute"

// healthServer answers gRPC health checks. It reports NOT_SERVING until the
// first flow table has been computed.
type healthServer struct {
	listener net.Listener
	server   *grpc.Server
	status   *health.Server
}

func newHealthServer(addr string) (*healthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening tcp failed, addr:%v, err:%w", addr, err)
	}
	h := &healthServer{
		listener: listener,
		server:   grpc.NewServer(),
		status:   health.NewServer(),
	}
	h.status.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.status.SetServingStatus(healthService, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(h.server, h.status)
	log.Infof("listening tcp success, health addr:%v", listener.Addr())
	return h, nil
}

func (h *healthServer) serve() {
	if err := h.server.Serve(h.listener); err != nil {
		log.Errorf("health server stopped, err:%v", err)
	}
}

// follow marks the service SERVING on the first table and logs later ones.
func (h *healthServer) follow(ctx context.Context, updates <-chan *routing.FlowTable) {
	serving := false
	for {
		select {
		case <-ctx.Done():
			return
		case table := <-updates:
			if !serving {
				h.status.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
				h.status.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
				serving = true
			}
			log.Debugf("health: flow table generation %d ready", table.Generation())
		}
	}
}

func (h *healthServer) stop() {
	h.status.Shutdown()
	h.server.GracefulStop()
}
