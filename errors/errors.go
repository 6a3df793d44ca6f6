package errors

import "fmt"

// Connection/authentication failures. These are the only errors allowed to
// refuse or terminate a connection.
var (
	ErrTokenRequired = fmt.Errorf("authentication token required")
	ErrTokenInvalid  = fmt.Errorf("authentication failed")
	ErrUserNotFound  = fmt.Errorf("user not found")
)

// Validation failures on inbound payloads or message content.
var (
	ErrInvalidPayload     = fmt.Errorf("invalid payload")
	ErrContentRequired    = fmt.Errorf("message content is required")
	ErrContentTooLong     = fmt.Errorf("message content exceeds the maximum length")
	ErrUnsupportedType    = fmt.Errorf("unsupported message type")
	ErrInvalidStatus      = fmt.Errorf("unknown status value")
	ErrAudioPayloadNeeded = fmt.Errorf("audio messages require an audio payload")
)

// Entity lookups.
var (
	ErrRecipientNotFound    = fmt.Errorf("recipient not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
)

// Permission and policy failures on message mutations.
var (
	ErrBlocked            = fmt.Errorf("cannot send message to this user")
	ErrEditNotSender      = fmt.Errorf("you can only edit your own messages")
	ErrDeleteNotSender    = fmt.Errorf("you can only delete your own messages")
	ErrReactionForbidden  = fmt.Errorf("access denied")
	ErrEditNotText        = fmt.Errorf("only text messages can be edited")
	ErrEditDeleted        = fmt.Errorf("cannot edit deleted message")
	ErrEditWindowExpired  = fmt.Errorf("message can only be edited within 15 minutes of sending")
	ErrEditUnchanged      = fmt.Errorf("new content must be different from current content")
	ErrAlreadyDeleted     = fmt.Errorf("message is already deleted")
	ErrReactToDeleted     = fmt.Errorf("cannot react to deleted message")
	ErrReactionNotPresent = fmt.Errorf("no reaction to remove")
)

var ErrWorkerPanic = fmt.Errorf("worker panic")
