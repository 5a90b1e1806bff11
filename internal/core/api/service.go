// Package api provides the gRPC lookup service implementation.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/editcheck/internal/core/auth"
	"github.com/solatis/editcheck/internal/core/config"
	"github.com/solatis/editcheck/internal/lookup"
)

// LookupService implements lookup.LookupServer over a lookup.Service.
// Thin layer: decode, delegate, map errors.
type LookupService struct {
	backend lookup.Service
	cfg     *config.LookupAPIConfig
	logger  *slog.Logger
}

var _ lookup.LookupServer = (*LookupService)(nil)

// NewLookupService creates the service.
func NewLookupService(backend lookup.Service, cfg *config.LookupAPIConfig, logger *slog.Logger) (*LookupService, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &LookupService{backend: backend, cfg: cfg, logger: logger}, nil
}

// Exists answers one existence query.
func (s *LookupService) Exists(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	q, err := lookup.DecodeQuery(req)
	if err != nil {
		return nil, toStatus(err)
	}

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	exists, err := s.backend.Exists(ctx, q)
	if err != nil {
		s.logger.Warn("lookup failed",
			"kind", q.Kind, "year", q.Year, "client", auth.KeyNameFromContext(ctx), "error", err)
		return nil, toStatus(err)
	}

	s.logger.Debug("lookup",
		"kind", q.Kind, "year", q.Year, "exists", exists,
		"client", auth.KeyNameFromContext(ctx), "duration", time.Since(start))
	return lookup.EncodeAnswer(exists), nil
}
