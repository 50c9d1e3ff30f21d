package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("start conversation: %w", ErrBlocked)
	assert.True(t, Is(wrapped, ErrBlocked))
	assert.False(t, Is(wrapped, ErrEmptyMessage))

	copyWithCause := Wrap(CodeBlocked, "blocked pair", fmt.Errorf("edge a->b"))
	assert.True(t, Is(copyWithCause, ErrBlocked))
	assert.Equal(t, "blocked pair: edge a->b", copyWithCause.Error())
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Code(""), CodeOf(nil))
	assert.Equal(t, CodeNotParticipant, CodeOf(fmt.Errorf("x: %w", ErrNotParticipant)))
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
}

func TestKindsAndStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code   Code
		kind   Kind
		status int
	}{
		{CodeConversationRequestAlreadyPending, KindValidation, http.StatusConflict},
		{CodeDirectMessagesDisabled, KindValidation, http.StatusUnprocessableEntity},
		{CodeBlocked, KindValidation, http.StatusUnprocessableEntity},
		{CodeEmptyMessage, KindValidation, http.StatusUnprocessableEntity},
		{CodeNotParticipant, KindAuthorization, http.StatusForbidden},
		{CodeUnauthenticated, KindAuthorization, http.StatusUnauthorized},
		{CodeConversationNotFound, KindNotFound, http.StatusNotFound},
		{CodeInternal, KindInternal, http.StatusInternalServerError},
		{Code("SOMETHING_NEW"), KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, tt.code.Kind(), tt.code)
		assert.Equal(t, tt.status, tt.code.HTTPStatus(), tt.code)
	}
}
