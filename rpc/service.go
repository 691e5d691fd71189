package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/wfunc/lobbyserver/auth"
	"github.com/wfunc/lobbyserver/broadcast"
	"github.com/wfunc/lobbyserver/lobby"
	"github.com/wfunc/lobbyserver/models"
	"github.com/wfunc/lobbyserver/network"
	"github.com/wfunc/lobbyserver/persistence"
	"github.com/wfunc/lobbyserver/services"
)

const serviceName = "lobby.v1.Lobby"

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

// Lobby is the part of the orchestrator exposed over RPC.
type Lobby interface {
	Start(ctx context.Context, starterID int64) (*models.Session, error)
	Join(ctx context.Context, userID int64) error
	Leave(ctx context.Context, userID int64) error
	Pick(ctx context.Context, userID int64, n int) error
	ForceEnd(ctx context.Context, winningNumber int) (*network.SessionEnded, error)
	Current() *lobby.Snapshot
}

// LobbyService is the struct that exposes RPC methods.
type LobbyService struct {
	lobby   Lobby
	players *services.PlayerService
	bus     *broadcast.Bus
}

func NewLobbyService(l Lobby, players *services.PlayerService, bus *broadcast.Bus) *LobbyService {
	return &LobbyService{lobby: l, players: players, bus: bus}
}

func (s *LobbyService) Login(ctx context.Context, req *LoginRequest) (*LoginReply, error) {
	res, err := s.players.Login(ctx, req.Username)
	if err != nil {
		return nil, toStatus(err)
	}
	return res, nil
}

func (s *LobbyService) Start(ctx context.Context, _ *Empty) (*StartReply, error) {
	session, err := s.lobby.Start(ctx, callerID(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return &StartReply{SessionID: session.ID}, nil
}

func (s *LobbyService) Join(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, toStatus(s.lobby.Join(ctx, callerID(ctx)))
}

func (s *LobbyService) Leave(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, toStatus(s.lobby.Leave(ctx, callerID(ctx)))
}

func (s *LobbyService) Pick(ctx context.Context, req *PickRequest) (*Empty, error) {
	return &Empty{}, toStatus(s.lobby.Pick(ctx, callerID(ctx), req.PickedNumber))
}

func (s *LobbyService) ForceEnd(ctx context.Context, req *ForceEndRequest) (*ForceEndReply, error) {
	ended, err := s.lobby.ForceEnd(ctx, req.WinningNumber)
	if err != nil {
		return nil, toStatus(err)
	}
	return ended, nil
}

func (s *LobbyService) Current(ctx context.Context, _ *Empty) (*CurrentReply, error) {
	return s.lobby.Current(), nil
}

// Events streams every published event until the caller goes away.
func (s *LobbyService) Events(_ *EventsRequest, stream grpc.ServerStream) error {
	err := s.bus.Attach(stream.Context(), &streamConnection{stream: stream})
	if err != nil && stream.Context().Err() == nil {
		return status.Error(codes.Unavailable, err.Error())
	}
	return nil
}

// streamConnection adapts a server stream to network.Connection.
type streamConnection struct {
	stream grpc.ServerStream
}

func (c *streamConnection) Send(e network.Event) error {
	return c.stream.SendMsg(&e)
}

func (c *streamConnection) Closed() <-chan struct{} {
	return c.stream.Context().Done()
}

func (c *streamConnection) Close() error {
	return nil
}

func (c *streamConnection) RemoteAddr() string {
	if p, ok := peer.FromContext(c.stream.Context()); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// toStatus maps an error kind onto a gRPC status. nil stays nil.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, lobby.ErrInvalidNumber),
		errors.Is(err, persistence.ErrInvalidUsername):
		code = codes.InvalidArgument
	case errors.Is(err, lobby.ErrNoActiveSession),
		errors.Is(err, persistence.ErrRecordNotFound):
		code = codes.NotFound
	case errors.Is(err, lobby.ErrSessionFull):
		code = codes.ResourceExhausted
	case errors.Is(err, lobby.ErrSessionAlreadyActive),
		errors.Is(err, lobby.ErrCoolingDown),
		errors.Is(err, lobby.ErrAlreadyJoined),
		errors.Is(err, lobby.ErrNotInSession):
		code = codes.FailedPrecondition
	case errors.Is(err, lobby.ErrLedgerUnavailable):
		code = codes.Unavailable
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		code = codes.Unauthenticated
	}
	return status.Error(code, err.Error())
}

func unary[Req, Resp any](name string, call func(s *LobbyService, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*LobbyService)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// lobbyServer is the handler type checked by RegisterService.
type lobbyServer interface {
	Login(context.Context, *LoginRequest) (*LoginReply, error)
	Events(*EventsRequest, grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*lobbyServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", (*LobbyService).Login),
		unary("Start", (*LobbyService).Start),
		unary("Join", (*LobbyService).Join),
		unary("Leave", (*LobbyService).Leave),
		unary("Pick", (*LobbyService).Pick),
		unary("ForceEnd", (*LobbyService).ForceEnd),
		unary("Current", (*LobbyService).Current),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Events",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(EventsRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(*LobbyService).Events(in, stream)
			},
		},
	},
	Metadata: "lobby/v1/lobby",
}
