package grpc_control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"market-data-server/src/logger"
	"market-data-server/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	ServiceScheduler = "scheduler"
	ServiceStorage   = "storage"

	DefaultPollInterval = 10 * time.Second
	pingTimeout         = 3 * time.Second
)

// Pinger is the storage liveness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Runner reports whether the background jobs are running
type Runner interface {
	IsRunning() bool
}

// -----------------------------------------------------------------------------
// ControlService exposes process health over grpc.health.v1
// -----------------------------------------------------------------------------

type ControlService struct {
	Config       *models.MConfig
	Storage      Pinger
	Scheduler    Runner
	Logger       *logger.Logger
	PollInterval time.Duration

	health *health.Server
	server *grpc.Server
	stop   chan struct{}
	once   sync.Once
}

// NewControlService creates a new instance of ControlService
func NewControlService(cfg *models.MConfig, storage Pinger, scheduler Runner, log *logger.Logger) *ControlService {
	s := &ControlService{
		Config:       cfg,
		Storage:      storage,
		Scheduler:    scheduler,
		Logger:       log,
		PollInterval: DefaultPollInterval,
		health:       health.NewServer(),
		server:       grpc.NewServer(),
		stop:         make(chan struct{}),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	return s
}

// -----------------------------------------------------------------------------

// Health returns the underlying health server, mainly for tests
func (s *ControlService) Health() healthpb.HealthServer {
	return s.health
}

// Refresh recomputes every service status once
func (s *ControlService) Refresh(ctx context.Context) {
	schedulerUp := s.Scheduler != nil && s.Scheduler.IsRunning()
	s.set(ServiceScheduler, schedulerUp)

	storageUp := false
	if s.Storage != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := s.Storage.Ping(pctx)
		cancel()
		if err != nil {
			s.Logger.Warning("Storage ping failed: %v", err)
		} else {
			storageUp = true
		}
	}
	s.set(ServiceStorage, storageUp)

	s.set("", schedulerUp && storageUp)
}

func (s *ControlService) set(service string, up bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

// -----------------------------------------------------------------------------

// poll refreshes statuses until Stop
func (s *ControlService) poll(ctx context.Context) {
	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start listens on grpc_host:grpc_port and serves until Stop
func (s *ControlService) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Config.GrpcHost, s.Config.GrpcPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve blocks serving health checks on lis
func (s *ControlService) Serve(ctx context.Context, lis net.Listener) error {
	s.Refresh(ctx)
	go s.poll(ctx)

	s.Logger.Info("gRPC health server listening on %s", lis.Addr())
	return s.server.Serve(lis)
}

func (s *ControlService) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.health.Shutdown()
		s.server.GracefulStop()
	})
}
