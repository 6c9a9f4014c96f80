package service

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/metrics"
	"github.com/kkkkikiki/infestor/internal/model"
	"github.com/kkkkikiki/infestor/internal/repository"
	giftcodev1 "github.com/kkkkikiki/infestor/internal/rpc/giftcodev1"
)

// GiftCodeServer implements the gift code admin API
type GiftCodeServer struct {
	store  GiftCodeStore
	logger *zap.Logger
}

// NewGiftCodeServer creates a new GiftCodeServer instance
func NewGiftCodeServer(store GiftCodeStore, logger *zap.Logger) *GiftCodeServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GiftCodeServer{store: store, logger: logger}
}

// AddGiftCode stores a gift code, generating one when none is given
func (s *GiftCodeServer) AddGiftCode(
	ctx context.Context,
	req *connect.Request[giftcodev1.AddGiftCodeRequest],
) (*connect.Response[giftcodev1.AddGiftCodeResponse], error) {
	code := req.Msg.Code
	generated := code == ""

	var (
		gc  *model.GiftCode
		err error
	)
	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		if generated {
			code = NewGiftCode()
		}
		gc, err = s.store.AddCode(ctx, code, req.Msg.CreatedFor)
		if !generated || !errors.Is(err, repository.ErrDuplicateCode) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, connect.NewError(connect.CodeAlreadyExists, fmt.Errorf("gift code %s already exists", code))
		}
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to add gift code: %w", err))
	}

	metrics.RecordGiftCodesIssued(SourceAdminRPC, 1)
	s.logger.Info("gift code added", zap.String("code", gc.Code), zap.Bool("generated", generated))

	res := connect.NewResponse(&giftcodev1.AddGiftCodeResponse{
		GiftCode: toProtoGiftCode(gc),
	})
	return res, nil
}

// GetGiftCode returns one gift code and whether it can still be redeemed
func (s *GiftCodeServer) GetGiftCode(
	ctx context.Context,
	req *connect.Request[giftcodev1.GetGiftCodeRequest],
) (*connect.Response[giftcodev1.GetGiftCodeResponse], error) {
	if req.Msg.Code == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrMissingCode)
	}

	gc, err := s.store.GetGiftCode(ctx, req.Msg.Code)
	if err != nil {
		if errors.Is(err, repository.ErrGiftCodeNotFound) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to get gift code: %w", err))
	}

	res := connect.NewResponse(&giftcodev1.GetGiftCodeResponse{
		GiftCode: toProtoGiftCode(gc),
	})
	return res, nil
}

// ListGiftCodes returns the codes issued for a user
func (s *GiftCodeServer) ListGiftCodes(
	ctx context.Context,
	req *connect.Request[giftcodev1.ListGiftCodesRequest],
) (*connect.Response[giftcodev1.ListGiftCodesResponse], error) {
	if req.Msg.CreatedFor == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("created_for is required"))
	}

	codes, err := s.store.GetGiftCodesByUser(ctx, req.Msg.CreatedFor)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to list gift codes: %w", err))
	}

	out := make([]*giftcodev1.GiftCode, 0, len(codes))
	for i := range codes {
		out = append(out, toProtoGiftCode(&codes[i]))
	}

	res := connect.NewResponse(&giftcodev1.ListGiftCodesResponse{
		GiftCodes: out,
	})
	return res, nil
}

func toProtoGiftCode(gc *model.GiftCode) *giftcodev1.GiftCode {
	out := &giftcodev1.GiftCode{
		Code:       gc.Code,
		CreatedAt:  gc.CreatedAt.UTC(),
		CreatedFor: gc.Owner(),
		Valid:      gc.IsValid(),
	}
	if gc.UsedAt != nil {
		usedAt := gc.UsedAt.UTC()
		out.UsedAt = &usedAt
	}
	return out
}
