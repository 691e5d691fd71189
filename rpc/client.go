package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/wfunc/lobbyserver/network"
)

// Client calls the lobby service. Login stores the token for later calls.
type Client struct {
	conn  *grpc.ClientConn
	token string
}

// Dial connects without transport security; extra options are appended.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) withToken(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	return c.conn.Invoke(c.withToken(ctx), fullMethod(method), req, reply)
}

func (c *Client) Login(ctx context.Context, username string) (*LoginReply, error) {
	reply := new(LoginReply)
	if err := c.invoke(ctx, "Login", &LoginRequest{Username: username}, reply); err != nil {
		return nil, err
	}
	c.token = reply.Token
	return reply, nil
}

func (c *Client) Start(ctx context.Context) (*StartReply, error) {
	reply := new(StartReply)
	return reply, c.invoke(ctx, "Start", &Empty{}, reply)
}

func (c *Client) Join(ctx context.Context) error {
	return c.invoke(ctx, "Join", &Empty{}, &Empty{})
}

func (c *Client) Leave(ctx context.Context) error {
	return c.invoke(ctx, "Leave", &Empty{}, &Empty{})
}

func (c *Client) Pick(ctx context.Context, n int) error {
	return c.invoke(ctx, "Pick", &PickRequest{PickedNumber: n}, &Empty{})
}

func (c *Client) ForceEnd(ctx context.Context, winningNumber int) (*ForceEndReply, error) {
	reply := new(ForceEndReply)
	return reply, c.invoke(ctx, "ForceEnd", &ForceEndRequest{WinningNumber: winningNumber}, reply)
}

func (c *Client) Current(ctx context.Context) (*CurrentReply, error) {
	reply := new(CurrentReply)
	return reply, c.invoke(ctx, "Current", &Empty{}, reply)
}

// EventStream receives events from an open Events call.
type EventStream struct {
	stream grpc.ClientStream
}

func (s *EventStream) Recv() (network.Event, error) {
	var e network.Event
	err := s.stream.RecvMsg(&e)
	return e, err
}

// Events opens the event stream. Cancel ctx to close it.
func (c *Client) Events(ctx context.Context) (*EventStream, error) {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Events"))
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&EventsRequest{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
