package server

import (
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/windfall/engapp_service/internal/config"
	grpchandler "github.com/windfall/engapp_service/internal/handler/grpc"
	"github.com/windfall/engapp_service/internal/middleware"
)

// GRPCServer represents the gRPC server.
type GRPCServer struct {
	server *grpc.Server
	health *health.Server
	addr   string
	log    zerolog.Logger
}

// NewGRPCServer creates a new gRPC server.
func NewGRPCServer(
	cfg *config.Config,
	log zerolog.Logger,
	handler grpchandler.AssessmentServer,
	validator middleware.TokenValidator,
) *GRPCServer {
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			UnaryLoggingInterceptor(log),
			UnaryRecoveryInterceptor(log),
			UnaryAuthInterceptor(validator, "/grpc.health.v1.Health/", "/grpc.reflection."),
		),
		grpc.ChainStreamInterceptor(
			StreamLoggingInterceptor(log),
			StreamRecoveryInterceptor(log),
		),
	)

	// Register services
	grpchandler.RegisterAssessmentServer(server, handler)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus(grpchandler.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for development
	if cfg.IsDevelopment() {
		reflection.Register(server)
	}

	return &GRPCServer{
		server: server,
		health: healthServer,
		addr:   cfg.GRPCAddress(),
		log:    log,
	}
}

// Start starts the gRPC server.
func (s *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until the server stops.
func (s *GRPCServer) Serve(lis net.Listener) error {
	s.log.Info().Str("addr", lis.Addr().String()).Msg("Starting gRPC server")
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return err
	}
	return nil
}

// GracefulStop marks the service as not serving and drains in-flight RPCs.
func (s *GRPCServer) GracefulStop() {
	s.log.Info().Msg("Shutting down gRPC server")
	s.health.Shutdown()
	s.server.GracefulStop()
}
