package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/player-messaging/internal/model"
	"github.com/capitalize-ai/player-messaging/internal/storage"
	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
	"github.com/capitalize-ai/player-messaging/pkg/logger"
)

// BlockService manages directed block edges between players.
type BlockService struct {
	blocks storage.BlockStore
	logger *logger.Logger
	opts   options
}

// NewBlockService creates a new block service.
func NewBlockService(blocks storage.BlockStore, log *logger.Logger, opts ...Option) *BlockService {
	if log == nil {
		log = logger.Nop()
	}
	return &BlockService{
		blocks: blocks,
		logger: log.Named("blocks"),
		opts:   newOptions(opts),
	}
}

// Block records that blockerID blocked blockedID. Repeating it is a no-op.
func (s *BlockService) Block(ctx context.Context, blockerID, blockedID string) (err error) {
	ctx, span := tracer.Start(ctx, "BlockService.Block")
	defer func() { finishSpan(span, err) }()

	if err := validatePair(blockerID, blockedID); err != nil {
		return err
	}
	block := model.Block{
		BlockerID: blockerID,
		BlockedID: blockedID,
		CreatedAt: s.opts.clock(),
	}
	if err := s.blocks.PutBlock(ctx, block); err != nil {
		return internal("store block", err)
	}

	s.logger.Info("player blocked",
		zap.String("blocker_id", blockerID),
		zap.String("blocked_id", blockedID),
	)
	return nil
}

// Unblock removes the edge. Removing a missing edge is a no-op.
func (s *BlockService) Unblock(ctx context.Context, blockerID, blockedID string) (err error) {
	ctx, span := tracer.Start(ctx, "BlockService.Unblock")
	defer func() { finishSpan(span, err) }()

	if err := validatePair(blockerID, blockedID); err != nil {
		return err
	}
	if err := s.blocks.DeleteBlock(ctx, blockerID, blockedID); err != nil {
		return internal("delete block", err)
	}

	s.logger.Info("player unblocked",
		zap.String("blocker_id", blockerID),
		zap.String("blocked_id", blockedID),
	)
	return nil
}

// ListBlocked returns the players blockerID has blocked.
func (s *BlockService) ListBlocked(ctx context.Context, blockerID string) ([]model.Block, error) {
	blocks, err := s.blocks.ListBlocked(ctx, blockerID)
	if err != nil {
		return nil, internal("list blocks", err)
	}
	if blocks == nil {
		blocks = []model.Block{}
	}
	return blocks, nil
}

// IsBlockedEitherWay reports whether either player blocked the other.
func (s *BlockService) IsBlockedEitherWay(ctx context.Context, a, b string) (bool, error) {
	return blockedEitherWay(ctx, s.blocks, a, b)
}

// EnsureNotBlocked returns ErrBlocked when either player blocked the other.
func (s *BlockService) EnsureNotBlocked(ctx context.Context, a, b string) error {
	return ensureNotBlocked(ctx, s.blocks, a, b)
}

func ensureNotBlocked(ctx context.Context, blocks storage.BlockStore, a, b string) error {
	blocked, err := blockedEitherWay(ctx, blocks, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return apperrors.ErrBlocked
	}
	return nil
}

func blockedEitherWay(ctx context.Context, blocks storage.BlockStore, a, b string) (bool, error) {
	ctx, span := tracer.Start(ctx, "blocks.check")
	defer span.End()
	span.SetAttributes(attribute.String("player.a", a), attribute.String("player.b", b))

	for _, pair := range [2][2]string{{a, b}, {b, a}} {
		blocked, err := blocks.IsBlocked(ctx, pair[0], pair[1])
		if err != nil {
			return false, internal("check block", err)
		}
		if blocked {
			return true, nil
		}
	}
	return false, nil
}

func validatePair(blockerID, blockedID string) error {
	if strings.TrimSpace(blockerID) == "" || strings.TrimSpace(blockedID) == "" {
		return apperrors.InvalidArg("player id is required")
	}
	if blockerID == blockedID {
		return apperrors.InvalidArg("players cannot block themselves")
	}
	return nil
}
