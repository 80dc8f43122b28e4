package rpc

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Client calls the auction service over HTTP
type Client struct {
	start           *connect.Client[emptypb.Empty, CommandResponse]
	pause           *connect.Client[PauseRequest, CommandResponse]
	resume          *connect.Client[emptypb.Empty, CommandResponse]
	end             *connect.Client[EndRequest, CommandResponse]
	forceResolve    *connect.Client[emptypb.Empty, CommandResponse]
	skipCurrentItem *connect.Client[emptypb.Empty, CommandResponse]
	forceNext       *connect.Client[emptypb.Empty, CommandResponse]
	reset           *connect.Client[emptypb.Empty, CommandResponse]
	getStatus       *connect.Client[emptypb.Empty, StatusResponse]
	placeBid        *connect.Client[PlaceBidRequest, PlaceBidResponse]
	getItem         *connect.Client[GetItemRequest, ItemResponse]
	login           *connect.Client[LoginRequest, LoginResponse]
}

// NewClient creates a client for the service at baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)

	return &Client{
		start:           connect.NewClient[emptypb.Empty, CommandResponse](httpClient, baseURL+StartProcedure, opts...),
		pause:           connect.NewClient[PauseRequest, CommandResponse](httpClient, baseURL+PauseProcedure, opts...),
		resume:          connect.NewClient[emptypb.Empty, CommandResponse](httpClient, baseURL+ResumeProcedure, opts...),
		end:             connect.NewClient[EndRequest, CommandResponse](httpClient, baseURL+EndProcedure, opts...),
		forceResolve:    connect.NewClient[emptypb.Empty, CommandResponse](httpClient, baseURL+ForceResolveProcedure, opts...),
		skipCurrentItem: connect.NewClient[emptypb.Empty, CommandResponse](httpClient, baseURL+SkipCurrentItemProcedure, opts...),
		forceNext:       connect.NewClient[emptypb.Empty, CommandResponse](httpClient, baseURL+ForceNextProcedure, opts...),
		reset:           connect.NewClient[emptypb.Empty, CommandResponse](httpClient, baseURL+ResetProcedure, opts...),
		getStatus:       connect.NewClient[emptypb.Empty, StatusResponse](httpClient, baseURL+GetStatusProcedure, opts...),
		placeBid:        connect.NewClient[PlaceBidRequest, PlaceBidResponse](httpClient, baseURL+PlaceBidProcedure, opts...),
		getItem:         connect.NewClient[GetItemRequest, ItemResponse](httpClient, baseURL+GetItemProcedure, opts...),
		login:           connect.NewClient[LoginRequest, LoginResponse](httpClient, baseURL+LoginProcedure, opts...),
	}
}

func unaryCommand[Req any](ctx context.Context, c *connect.Client[Req, CommandResponse], msg *Req) (string, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return "", err
	}
	return resp.Msg.Phase, nil
}

func (c *Client) Start(ctx context.Context) (string, error) {
	return unaryCommand(ctx, c.start, &emptypb.Empty{})
}

func (c *Client) Pause(ctx context.Context, reason string) (string, error) {
	return unaryCommand(ctx, c.pause, &PauseRequest{Reason: reason})
}

func (c *Client) Resume(ctx context.Context) (string, error) {
	return unaryCommand(ctx, c.resume, &emptypb.Empty{})
}

func (c *Client) End(ctx context.Context, reason string) (string, error) {
	return unaryCommand(ctx, c.end, &EndRequest{Reason: reason})
}

func (c *Client) ForceResolve(ctx context.Context) (string, error) {
	return unaryCommand(ctx, c.forceResolve, &emptypb.Empty{})
}

func (c *Client) SkipCurrentItem(ctx context.Context) (string, error) {
	return unaryCommand(ctx, c.skipCurrentItem, &emptypb.Empty{})
}

func (c *Client) ForceNext(ctx context.Context) (string, error) {
	return unaryCommand(ctx, c.forceNext, &emptypb.Empty{})
}

func (c *Client) Reset(ctx context.Context) (string, error) {
	return unaryCommand(ctx, c.reset, &emptypb.Empty{})
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	resp, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) PlaceBid(ctx context.Context, bidderID string, amount int64) (*PlaceBidResponse, error) {
	resp, err := c.placeBid.CallUnary(ctx, connect.NewRequest(&PlaceBidRequest{BidderID: bidderID, Amount: amount}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetItem(ctx context.Context, itemID string) (*ItemResponse, error) {
	resp, err := c.getItem.CallUnary(ctx, connect.NewRequest(&GetItemRequest{ItemID: itemID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Login(ctx context.Context, name, password string) (string, error) {
	resp, err := c.login.CallUnary(ctx, connect.NewRequest(&LoginRequest{Name: name, Password: password}))
	if err != nil {
		return "", err
	}
	return resp.Msg.Token, nil
}
