package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/DRSN-tech/search-assistant/internal/cfg"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName — имя сервиса в протоколе grpc.health.v1.
const ServiceName = "search-assistant"

// Pinger проверяет доступность каталога.
type Pinger interface {
	Ping(ctx context.Context) error
}

type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	cfg    *cfg.GRPCConfig
	logger logger.Logger
}

func NewGRPCServer(cfg *cfg.GRPCConfig, logger logger.Logger) *GRPCServer {
	return &GRPCServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		cfg:    cfg,
		logger: logger,
	}
}

// RegisterServices регистрирует стандартный health-сервис.
func (s *GRPCServer) RegisterServices() {
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// WatchCatalog периодически проверяет каталог и переключает статус сервиса.
// Завершается вместе с ctx.
func (s *GRPCServer) WatchCatalog(ctx context.Context, db Pinger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		checkCtx, cancel := context.WithTimeout(ctx, interval)
		err := db.Ping(checkCtx)
		cancel()

		switch {
		case err != nil && serving:
			s.logger.Warnf("catalog unavailable, reporting NOT_SERVING: %v", err)
			s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			serving = false
		case err == nil && !serving:
			s.logger.Infof("catalog available again, reporting SERVING")
			s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
			serving = true
		}
	}
}

func (s *GRPCServer) Start() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	lis, err := net.Listen(s.cfg.NetworkMode, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.Serve(lis)
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

func (s *GRPCServer) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infof("gRPC server stopped gracefully")
		return nil
	case <-ctx.Done():
		s.server.Stop()
		s.logger.Warnf("gRPC server forced to stop after timeout")
		return ctx.Err()
	}
}
