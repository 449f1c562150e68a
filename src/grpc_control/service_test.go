package grpc_control

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"market-data-server/src/logger"
	"market-data-server/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

type fakeRunner bool

func (r fakeRunner) IsRunning() bool { return bool(r) }

func check(t *testing.T, s *ControlService, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := s.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q): %v", service, err)
	}
	return resp.Status
}

func TestRefresh(t *testing.T) {
	log := logger.NewTestLogger(&bytes.Buffer{}, "grpc")

	tests := []struct {
		name                           string
		running                        bool
		pingErr                        error
		wantProcess, wantSched, wantDB healthpb.HealthCheckResponse_ServingStatus
	}{
		{"all up", true, nil, healthpb.HealthCheckResponse_SERVING, healthpb.HealthCheckResponse_SERVING, healthpb.HealthCheckResponse_SERVING},
		{"scheduler stopped", false, nil, healthpb.HealthCheckResponse_NOT_SERVING, healthpb.HealthCheckResponse_NOT_SERVING, healthpb.HealthCheckResponse_SERVING},
		{"storage down", true, errors.New("db gone"), healthpb.HealthCheckResponse_NOT_SERVING, healthpb.HealthCheckResponse_SERVING, healthpb.HealthCheckResponse_NOT_SERVING},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewControlService(&models.MConfig{}, fakePinger{tt.pingErr}, fakeRunner(tt.running), log)
			s.Refresh(context.Background())

			if got := check(t, s, ""); got != tt.wantProcess {
				t.Errorf("process = %v, want %v", got, tt.wantProcess)
			}
			if got := check(t, s, ServiceScheduler); got != tt.wantSched {
				t.Errorf("scheduler = %v, want %v", got, tt.wantSched)
			}
			if got := check(t, s, ServiceStorage); got != tt.wantDB {
				t.Errorf("storage = %v, want %v", got, tt.wantDB)
			}
		})
	}
}

func TestServeOverTCP(t *testing.T) {
	log := logger.NewTestLogger(&bytes.Buffer{}, "grpc")
	s := NewControlService(&models.MConfig{}, fakePinger{}, fakeRunner(true), log)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx, lis)
	defer s.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cctx, ccancel := context.WithTimeout(ctx, 5*time.Second)
	defer ccancel()
	resp, err := healthpb.NewHealthClient(conn).Check(cctx, &healthpb.HealthCheckRequest{Service: ServiceStorage}, grpc.WaitForReady(true))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("storage = %v", resp.Status)
	}
}
