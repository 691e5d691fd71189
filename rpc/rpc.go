package rpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/wfunc/lobbyserver/auth"
	"github.com/wfunc/lobbyserver/logger"
)

// stopGrace bounds how long Stop waits for in-flight calls.
const stopGrace = 5 * time.Second

// Server manages the gRPC listener.
type Server struct {
	grpc    *grpc.Server
	address string
}

// NewServer registers svc behind the logging and auth interceptors.
func NewServer(addr string, svc *LobbyService, authenticator *auth.Authenticator) *Server {
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor,
		authInterceptor(authenticator),
	))
	gs.RegisterService(&serviceDesc, svc)
	return &Server{grpc: gs, address: addr}
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	logger.Log.Infof("RPC server listening on %s", listener.Addr())
	return s.grpc.Serve(listener)
}

// Stop drains in-flight calls, then cuts off whatever is left.
func (s *Server) Stop() {
	logger.Log.Info("Stopping RPC server.")
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGrace):
		s.grpc.Stop()
	}
}

type identityKey struct{}

func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func callerID(ctx context.Context) int64 {
	id, _ := ctx.Value(identityKey{}).(auth.Identity)
	return id.UserID
}

// authInterceptor verifies the bearer token in the "authorization" metadata
// for every method except Login.
func authInterceptor(a *auth.Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod == fullMethod("Login") {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, auth.ErrMissingToken.Error())
		}
		token, err := auth.BearerToken(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		id, err := a.Verify(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(withIdentity(ctx, id), req)
	}
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logger.Log.Debugw("rpc call",
		"method", info.FullMethod,
		"code", status.Code(err),
		"latency", time.Since(start),
	)
	return resp, err
}
