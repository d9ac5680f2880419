// Package server exposes psyclone over HTTP (JSON, chi) and gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/JamesWemyss/psyclone/actions"
	"github.com/JamesWemyss/psyclone/agent"
	"github.com/JamesWemyss/psyclone/conversations"
	"github.com/JamesWemyss/psyclone/metrics"
)

const shutdownTimeout = 10 * time.Second

// Config holds server configuration options.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string // Empty disables gRPC
	CORSOrigins []string
	Logger      zerolog.Logger
}

// Deps are the services the handlers call.
type Deps struct {
	Dispatcher   *agent.Dispatcher
	Orchestrator *agent.Orchestrator
	Executors    *actions.Executors
	Turns        *conversations.Store
	Metrics      *metrics.Metrics
}

// Server serves the HTTP API and, when configured, the gRPC service.
type Server struct {
	cfg      Config
	deps     Deps
	validate *validator.Validate
	logger   zerolog.Logger

	grpcServer *grpc.Server
	startedAt  time.Time
}

// New creates a server. Dispatcher, Orchestrator and Executors are required.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Dispatcher == nil || deps.Orchestrator == nil || deps.Executors == nil {
		return nil, fmt.Errorf("dispatcher, orchestrator and executors are required")
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		validate:  newValidator(),
		logger:    cfg.Logger.With().Str("component", "server").Logger(),
		startedAt: time.Now(),
	}
	s.grpcServer = s.newGRPCServer()
	return s, nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Run serves until ctx is done, then shuts both listeners down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
	}
	var grpcLn net.Listener
	if s.cfg.GRPCAddr != "" {
		grpcLn, err = s.listenGRPC()
		if err != nil {
			_ = httpLn.Close()
			return fmt.Errorf("listen grpc %s: %w", s.cfg.GRPCAddr, err)
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// listenGRPC listens on a Unix socket when GRPCAddr is a path or unix://
// URL, otherwise on TCP. A stale socket file is removed first.
func (s *Server) listenGRPC() (net.Listener, error) {
	addr := s.cfg.GRPCAddr
	if !strings.HasPrefix(addr, "unix://") && !strings.HasPrefix(addr, "/") {
		return net.Listen("tcp", addr)
	}
	path := strings.TrimPrefix(addr, "unix://")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("socket", path).Msg("Failed to remove existing socket file")
	}
	return net.Listen("unix", path)
}

// Serve runs on the given listeners. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info().Str("address", httpLn.Addr().String()).Msg("Starting HTTP server")
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if grpcLn != nil {
		g.Go(func() error {
			s.logger.Info().Str("address", grpcLn.Addr().String()).Msg("Starting gRPC server")
			if err := s.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info().Msg("Shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.grpcServer.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// GRPCServer returns the underlying gRPC server.
func (s *Server) GRPCServer() *grpc.Server { return s.grpcServer }
