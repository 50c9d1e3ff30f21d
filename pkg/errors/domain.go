package errors

var (
	// Domain validation errors.
	ErrConversationRequestAlreadyPending = New(CodeConversationRequestAlreadyPending, "a conversation request is already pending")
	ErrDirectMessagesDisabled            = New(CodeDirectMessagesDisabled, "recipient does not accept direct messages")
	ErrBlocked                           = New(CodeBlocked, "messaging between these players is blocked")
	ErrEmptyMessage                      = New(CodeEmptyMessage, "message content is empty")
	ErrMessagingMuted                    = New(CodeMessagingMuted, "messaging is restricted for this account")
	ErrConversationNotAccepted           = New(CodeConversationNotAccepted, "conversation has not been accepted")
	ErrInvalidStatusTransition           = New(CodeInvalidStatusTransition, "conversation status does not allow this action")
	ErrSelfConversation                  = New(CodeSelfConversation, "cannot start a conversation with yourself")

	// Authorization errors.
	ErrNotParticipant = New(CodeNotParticipant, "player is not a participant of this conversation")
	ErrNotRecipient   = New(CodeNotRecipient, "only the recipient can respond to a conversation request")

	// Not-found errors.
	ErrConversationNotFound = New(CodeConversationNotFound, "conversation not found")
	ErrPlayerNotFound       = New(CodePlayerNotFound, "player not found")
)
