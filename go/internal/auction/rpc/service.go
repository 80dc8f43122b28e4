// Package rpc exposes the auction engine as a Connect service speaking JSON.
package rpc

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/auction/engine"
	"github.com/mcdev12/gavel/go/internal/auction/state"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/mcdev12/gavel/go/internal/models"
	"google.golang.org/protobuf/types/known/emptypb"
)

// Auction is the engine surface the service drives
type Auction interface {
	Start(ctx context.Context) (state.Phase, error)
	Pause(ctx context.Context, reason string) (state.Phase, error)
	Resume(ctx context.Context) (state.Phase, error)
	End(ctx context.Context, reason string) (state.Phase, error)
	ForceResolve(ctx context.Context) (state.Phase, error)
	SkipCurrentItem(ctx context.Context) (state.Phase, error)
	ForceNext(ctx context.Context) (state.Phase, error)
	Reset(ctx context.Context) (state.Phase, error)
	PlaceBid(ctx context.Context, bidderID uuid.UUID, amount int64) (*models.Bid, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
	Status() engine.Status
}

var _ Auction = (*engine.Engine)(nil)

// Service implements the auction RPCs. With a nil JWT manager every caller
// is treated as an operator, which is only meant for local development.
type Service struct {
	auction  Auction
	jwt      *auth.JWTManager
	operator *auth.OperatorAuthenticator
}

func NewService(auction Auction, jwt *auth.JWTManager, operator *auth.OperatorAuthenticator) *Service {
	return &Service{auction: auction, jwt: jwt, operator: operator}
}

// Handler returns the path prefix and handler serving every procedure
func (s *Service) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	interceptors := []connect.Interceptor{LoggingInterceptor()}
	if s.jwt != nil {
		interceptors = append(interceptors, RequireAuth(s.jwt))
	}
	opts = append([]connect.HandlerOption{
		connect.WithCodec(Codec{}),
		connect.WithInterceptors(interceptors...),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(StartProcedure, connect.NewUnaryHandler(StartProcedure, command(s, func(ctx context.Context, _ *emptypb.Empty) (state.Phase, error) {
		return s.auction.Start(ctx)
	}), opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, command(s, func(ctx context.Context, req *PauseRequest) (state.Phase, error) {
		return s.auction.Pause(ctx, req.Reason)
	}), opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, command(s, func(ctx context.Context, _ *emptypb.Empty) (state.Phase, error) {
		return s.auction.Resume(ctx)
	}), opts...))
	mux.Handle(EndProcedure, connect.NewUnaryHandler(EndProcedure, command(s, func(ctx context.Context, req *EndRequest) (state.Phase, error) {
		return s.auction.End(ctx, req.Reason)
	}), opts...))
	mux.Handle(ForceResolveProcedure, connect.NewUnaryHandler(ForceResolveProcedure, command(s, func(ctx context.Context, _ *emptypb.Empty) (state.Phase, error) {
		return s.auction.ForceResolve(ctx)
	}), opts...))
	mux.Handle(SkipCurrentItemProcedure, connect.NewUnaryHandler(SkipCurrentItemProcedure, command(s, func(ctx context.Context, _ *emptypb.Empty) (state.Phase, error) {
		return s.auction.SkipCurrentItem(ctx)
	}), opts...))
	mux.Handle(ForceNextProcedure, connect.NewUnaryHandler(ForceNextProcedure, command(s, func(ctx context.Context, _ *emptypb.Empty) (state.Phase, error) {
		return s.auction.ForceNext(ctx)
	}), opts...))
	mux.Handle(ResetProcedure, connect.NewUnaryHandler(ResetProcedure, command(s, func(ctx context.Context, _ *emptypb.Empty) (state.Phase, error) {
		return s.auction.Reset(ctx)
	}), opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(PlaceBidProcedure, connect.NewUnaryHandler(PlaceBidProcedure, s.PlaceBid, opts...))
	mux.Handle(GetItemProcedure, connect.NewUnaryHandler(GetItemProcedure, s.GetItem, opts...))
	mux.Handle(LoginProcedure, connect.NewUnaryHandler(LoginProcedure, s.Login, opts...))

	return "/" + ServiceName + "/", mux
}

// command wraps an operator-only state transition
func command[Req any](s *Service, run func(ctx context.Context, req *Req) (state.Phase, error)) func(context.Context, *connect.Request[Req]) (*connect.Response[CommandResponse], error) {
	return func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[CommandResponse], error) {
		if err := s.requireOperator(ctx); err != nil {
			return nil, toConnectError(err)
		}
		phase, err := run(ctx, req.Msg)
		if err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(&CommandResponse{Phase: string(phase)}), nil
	}
}

func (s *Service) GetStatus(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[StatusResponse], error) {
	return connect.NewResponse(NewStatusResponse(s.auction.Status())), nil
}

func (s *Service) PlaceBid(ctx context.Context, req *connect.Request[PlaceBidRequest]) (*connect.Response[PlaceBidResponse], error) {
	bidderID, err := s.bidderFor(ctx, req.Msg.BidderID)
	if err != nil {
		return nil, toConnectError(err)
	}

	bid, err := s.auction.PlaceBid(ctx, bidderID, req.Msg.Amount)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PlaceBidResponse{
		BidID:    bid.ID.String(),
		ItemID:   bid.ItemID.String(),
		BidderID: bid.BidderID.String(),
		Amount:   bid.Amount,
		PlacedAt: bid.PlacedAt,
	}), nil
}

func (s *Service) GetItem(ctx context.Context, req *connect.Request[GetItemRequest]) (*connect.Response[ItemResponse], error) {
	id, err := uuid.Parse(req.Msg.ItemID)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid item_id: %w", err))
	}
	item, err := s.auction.GetItem(ctx, id)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(newItemResponse(item)), nil
}

// Login exchanges operator credentials for a token
func (s *Service) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	if s.jwt == nil || s.operator == nil || !s.operator.Enabled() {
		return nil, connect.NewError(connect.CodeUnimplemented, fmt.Errorf("operator login is not configured"))
	}
	if err := s.operator.Authenticate(req.Msg.Name, req.Msg.Password); err != nil {
		return nil, toConnectError(err)
	}
	token, err := s.jwt.GenerateOperator(req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&LoginResponse{Token: token}), nil
}

func (s *Service) requireOperator(ctx context.Context) error {
	if s.jwt == nil {
		return nil
	}
	claims := auth.ClaimsFrom(ctx)
	if claims == nil {
		return auth.ErrMissingToken
	}
	if claims.Role != auth.RoleOperator {
		return auth.ErrForbidden
	}
	return nil
}

// bidderFor resolves who is bidding. Bidder tokens may only bid as
// themselves; operators bid on behalf of the named bidder.
func (s *Service) bidderFor(ctx context.Context, requested string) (uuid.UUID, error) {
	claims := auth.ClaimsFrom(ctx)
	if s.jwt != nil && claims == nil {
		return uuid.Nil, auth.ErrMissingToken
	}

	if claims != nil && claims.Role == auth.RoleBidder {
		self, err := claims.BidderID()
		if err != nil {
			return uuid.Nil, err
		}
		if requested != "" && requested != self.String() {
			return uuid.Nil, fmt.Errorf("%w: bidder tokens bid only as themselves", auth.ErrForbidden)
		}
		return self, nil
	}

	if requested == "" {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("bidder_id is required"))
	}
	id, err := uuid.Parse(requested)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid bidder_id: %w", err))
	}
	return id, nil
}
