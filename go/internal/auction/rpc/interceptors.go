package rpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/gavel/go/internal/auth"
	"github.com/rs/zerolog/log"
)

// LoggingInterceptor logs every call with its procedure, caller and duration
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			duration := time.Since(start).Milliseconds()
			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) && connectErr.Code() != connect.CodeInternal {
					log.Warn().
						Str("procedure", procedure).
						Str("code", connectErr.Code().String()).
						Str("error", connectErr.Message()).
						Int64("duration_ms", duration).
						Msg("rpc rejected")
				} else {
					log.Error().
						Err(err).
						Str("procedure", procedure).
						Int64("duration_ms", duration).
						Msg("rpc failed")
				}
			} else {
				log.Info().
					Str("procedure", procedure).
					Int64("duration_ms", duration).
					Msg("rpc ok")
			}
			return resp, err
		}
	}
}

// RequireAuth validates the bearer token on every call except Login and
// stores the claims on the context
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().Procedure == LoginProcedure {
				return next(ctx, req)
			}

			authHeader := req.Header().Get("Authorization")
			if authHeader == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
			}

			claims, err := jwtManager.Validate(parts[1])
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			log.Debug().
				Str("procedure", req.Spec().Procedure).
				Str("subject", claims.Subject).
				Str("role", string(claims.Role)).
				Msg("authenticated")
			return next(auth.WithClaims(ctx, claims), req)
		}
	}
}

// WithBearerToken attaches a token to every outgoing call
func WithBearerToken(token string) connect.ClientOption {
	return connect.WithInterceptors(connect.UnaryInterceptorFunc(func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token != "" {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}))
}
