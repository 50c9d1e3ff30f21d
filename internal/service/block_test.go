package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/player-messaging/internal/model"
	apperrors "github.com/capitalize-ai/player-messaging/pkg/errors"
)

func TestBlockIsIdempotent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.blocks.Block(f.ctx, "alice", "bob"))
	require.NoError(t, f.blocks.Block(f.ctx, "alice", "bob"))
	blocks, err := f.blocks.ListBlocked(f.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "bob", blocks[0].BlockedID)

	require.ErrorIs(t, f.blocks.EnsureNotBlocked(f.ctx, "bob", "alice"), apperrors.ErrBlocked)

	require.NoError(t, f.blocks.Unblock(f.ctx, "alice", "bob"))
	require.NoError(t, f.blocks.Unblock(f.ctx, "alice", "bob"))
	blocks, err = f.blocks.ListBlocked(f.ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, blocks)
	require.NoError(t, f.blocks.EnsureNotBlocked(f.ctx, "alice", "bob"))
}

func TestBlockRejectsSelf(t *testing.T) {
	f := newFixture(t)

	err := f.blocks.Block(f.ctx, "alice", "alice")
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
	err = f.blocks.Block(f.ctx, "alice", "")
	assert.Equal(t, apperrors.CodeInvalidArgument, apperrors.CodeOf(err))
}

func TestBlockKeepsConversationStatus(t *testing.T) {
	f := newFixture(t)
	conv := f.accepted(t, "alice", "bob")

	require.NoError(t, f.blocks.Block(f.ctx, "bob", "alice"))
	stored, err := f.store.GetConversation(f.ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, stored.Status)
}
