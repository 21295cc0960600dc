package orchestrator

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// GRPCHealthProbe asks the agent backend's standard gRPC health service
// whether it is serving.
type GRPCHealthProbe struct {
	addr    string
	service string
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
}

// NewGRPCHealthProbe creates a lazy connection to addr; nothing is dialled
// until the first check.
func NewGRPCHealthProbe(addr, service string) (*GRPCHealthProbe, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: false,
		}),
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create health client for %s: %w", addr, err)
	}
	return &GRPCHealthProbe{
		addr:    addr,
		service: service,
		conn:    conn,
		client:  healthpb.NewHealthClient(conn),
	}, nil
}

// Check reports whether the backend is SERVING. It matches
// observability.HealthCheckFunc.
func (p *GRPCHealthProbe) Check(ctx context.Context) (bool, error) {
	resp, err := p.client.Check(ctx, &healthpb.HealthCheckRequest{Service: p.service})
	if err != nil {
		return false, fmt.Errorf("health check against %s failed: %w", p.addr, err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// Close closes the gRPC connection
func (p *GRPCHealthProbe) Close() error {
	return p.conn.Close()
}
