package giftcodev1

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"connectrpc.com/connect"
)

// Codec marshals plain Go messages as JSON. It registers under "json", the
// name connect uses for the application/json content type.
type Codec struct{}

func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

var errInvalidToken = errors.New("invalid or missing bearer token")

// NewAuthInterceptor attaches token to outgoing requests and requires it on
// incoming ones.
func NewAuthInterceptor(token string) connect.UnaryInterceptorFunc {
	want := []byte("Bearer " + token)
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				req.Header().Set("Authorization", string(want))
				return next(ctx, req)
			}
			got := strings.TrimSpace(req.Header().Get("Authorization"))
			if token == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
			}
			return next(ctx, req)
		}
	}
}
