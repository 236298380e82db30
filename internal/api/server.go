// Package api serves the daemon's operational endpoints: HTTP health,
// status and Prometheus metrics, and the gRPC health service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

// Server hosts the HTTP and gRPC listeners. An empty address disables the
// corresponding listener.
type Server struct {
	httpAddr string
	grpcAddr string

	httpSrv *http.Server
	grpcSrv *grpc.Server
	health  *HealthService
	log     *slog.Logger
}

// Options configures a Server.
type Options struct {
	HTTPAddr string
	GRPCAddr string
	Metrics  http.Handler // served at /metrics when non-nil
	Status   StatusFunc   // served at /status when non-nil
}

// NewServer creates a Server. Listeners are not opened until
// ListenAndServe.
func NewServer(opts Options) *Server {
	s := &Server{
		httpAddr: opts.HTTPAddr,
		grpcAddr: opts.GRPCAddr,
		health:   NewHealthService(),
		log:      slog.Default().With("component", "api"),
	}
	s.httpSrv = &http.Server{
		Handler:           newMux(s.health, opts.Metrics, opts.Status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.grpcSrv = grpc.NewServer()
	s.health.Register(s.grpcSrv)
	return s
}

// Health returns the health service so the owner can flip serving status.
func (s *Server) Health() *HealthService { return s.health }

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe starts the configured listeners and blocks until ctx is
// cancelled or a listener fails, then shuts both down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var (
		httpLn, grpcLn net.Listener
		err            error
	)
	if s.httpAddr != "" {
		if httpLn, err = net.Listen("tcp", s.httpAddr); err != nil {
			return fmt.Errorf("listening on %s: %w", s.httpAddr, err)
		}
	}
	if s.grpcAddr != "" {
		if grpcLn, err = net.Listen("tcp", s.grpcAddr); err != nil {
			if httpLn != nil {
				httpLn.Close()
			}
			return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
		}
	}
	return s.Serve(ctx, httpLn, grpcLn)
}

// Serve runs on already-open listeners; either may be nil.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	if httpLn != nil {
		s.log.Info("http listening", "addr", httpLn.Addr().String())
		g.Go(func() error {
			if err := s.httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	if grpcLn != nil {
		s.log.Info("grpc listening", "addr", grpcLn.Addr().String())
		g.Go(func() error {
			if err := s.grpcSrv.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown marks the service as not serving and stops both servers,
// waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(done)
	}()

	err := s.httpSrv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcSrv.Stop()
	}
	return err
}
