package errors

import "net/http"

// Code identifies a failure in API responses and logs.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeInternal           Code = "INTERNAL"

	// Messaging domain codes.
	CodeConversationRequestAlreadyPending Code = "CONVERSATION_REQUEST_ALREADY_PENDING"
	CodeDirectMessagesDisabled            Code = "DIRECT_MESSAGES_DISABLED"
	CodeBlocked                           Code = "BLOCKED"
	CodeEmptyMessage                      Code = "EMPTY_MESSAGE"
	CodeMessagingMuted                    Code = "MESSAGING_MUTED"
	CodeConversationNotAccepted           Code = "CONVERSATION_NOT_ACCEPTED"
	CodeInvalidStatusTransition           Code = "INVALID_STATUS_TRANSITION"
	CodeSelfConversation                  Code = "SELF_CONVERSATION"
	CodeNotParticipant                    Code = "NOT_PARTICIPANT"
	CodeNotRecipient                      Code = "NOT_RECIPIENT"
	CodeConversationNotFound              Code = "CONVERSATION_NOT_FOUND"
	CodePlayerNotFound                    Code = "PLAYER_NOT_FOUND"
)

// Kind groups codes by how callers are expected to react.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

var codeKinds = map[Code]Kind{
	CodeInvalidArgument:                   KindValidation,
	CodeFailedPrecondition:                KindValidation,
	CodeConversationRequestAlreadyPending: KindValidation,
	CodeDirectMessagesDisabled:            KindValidation,
	CodeBlocked:                           KindValidation,
	CodeEmptyMessage:                      KindValidation,
	CodeMessagingMuted:                    KindValidation,
	CodeConversationNotAccepted:           KindValidation,
	CodeInvalidStatusTransition:           KindValidation,
	CodeSelfConversation:                  KindValidation,
	CodePermissionDenied:                  KindAuthorization,
	CodeUnauthenticated:                   KindAuthorization,
	CodeNotParticipant:                    KindAuthorization,
	CodeNotRecipient:                      KindAuthorization,
	CodeNotFound:                          KindNotFound,
	CodeConversationNotFound:              KindNotFound,
	CodePlayerNotFound:                    KindNotFound,
}

// Kind returns the taxonomy bucket for the code. Unknown codes are internal.
func (c Code) Kind() Kind {
	if kind, ok := codeKinds[c]; ok {
		return kind
	}
	return KindInternal
}

// HTTPStatus maps the code to the status written by the HTTP layer.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeConversationRequestAlreadyPending, CodeInvalidStatusTransition:
		return http.StatusConflict
	}
	switch c.Kind() {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
