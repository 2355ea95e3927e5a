package health

import (
	"net"

	"homework-helper/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCServer serves grpc.health.v1.Health with the checker's results. The
// empty service name carries the overall status; each component is served
// under its own name.
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
	log    *logger.Logger
}

// NewGRPCServer creates the server and keeps it in sync with checker
func NewGRPCServer(checker *Checker, log *logger.Logger) *GRPCServer {
	if log == nil {
		log = logger.Discard()
	}

	hs := grpchealth.NewServer()
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	for name, component := range checker.GetStatus() {
		hs.SetServingStatus(name, servingStatus(component.Status))
	}
	hs.SetServingStatus("", servingStatus(checker.overall()))

	checker.OnChange(func(name string, status Status) {
		hs.SetServingStatus(name, servingStatus(status))
		hs.SetServingStatus("", servingStatus(checker.overall()))
	})

	return &GRPCServer{server: server, health: hs, log: log}
}

// Serve blocks serving on lis
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	return g.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains the server
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

func servingStatus(s Status) healthpb.HealthCheckResponse_ServingStatus {
	if s == StatusDown {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}
