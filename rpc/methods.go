package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"github.com/spooky-finn/kucoin-book-mirror/usecase"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *server) GetOrderBook(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	symbol, err := s.symbol(in)
	if err != nil {
		return nil, err
	}

	view, err := s.orderbookSnapshotUseCase.GetOrderBookSnapshot(symbol, domain.MaxDepth)
	if err != nil {
		return nil, toStatus(err)
	}

	return toStruct(view)
}

func (s *server) GetOfficialSnapshot(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	symbol, err := s.symbol(in)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.orderbookSnapshotUseCase.GetOfficialSnapshot(ctx, symbol)
	if err != nil {
		return nil, toStatus(err)
	}

	return toStruct(snapshot)
}

func (s *server) Reconcile(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	symbol, err := s.symbol(in)
	if err != nil {
		return nil, err
	}

	report, err := s.orderbookSnapshotUseCase.Reconcile(ctx, symbol)
	if err != nil {
		return nil, toStatus(err)
	}

	return toStruct(report)
}

func (s *server) StartFeed(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.feedStatus(s.feedControlUseCase.Start())
}

func (s *server) StopFeed(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.feedStatus(s.feedControlUseCase.Stop())
}

func (s *server) RestartFeed(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.feedStatus(s.feedControlUseCase.Restart())
}

func (s *server) feedStatus(state string, err error) (*structpb.Struct, error) {
	if err != nil {
		s.logger.Warn("feed command failed", zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}

	return structpb.NewStruct(map[string]interface{}{"status": state})
}

func (s *server) symbol(in *wrapperspb.StringValue) (string, error) {
	symbol, err := s.validationService.NormalizeSymbol(in.GetValue())
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "invalid market symbol %q. Use BASE-QUOTE", in.GetValue())
	}

	if !s.validationService.IsSupportedSymbol(symbol) {
		return "", status.Errorf(codes.NotFound, "symbol %s is not mirrored", symbol)
	}

	return symbol, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidMarketSymbol):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrOrderBookNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, usecase.ErrOfficialSnapshotUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %s", err))
	}

	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %s", err))
	}
	return out, nil
}
