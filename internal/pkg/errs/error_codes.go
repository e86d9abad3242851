/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both internally
within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Conversation and Message Business Logic Errors
const (
	// ErrConversationNotFound indicates the requested conversation does not exist.
	ErrConversationNotFound = 2101

	// ErrNotConversationMember indicates the requester is not a member of the conversation.
	ErrNotConversationMember = 2102

	// ErrCannotMessage indicates the member's canMessage permission is revoked.
	ErrCannotMessage = 2103

	// ErrMemberPermissionDenied indicates the requester may not manage members of the conversation.
	ErrMemberPermissionDenied = 2104

	// ErrMessageNotFound indicates the requested message does not exist.
	ErrMessageNotFound = 2201

	// ErrNotMessageSender indicates the requester is not the sender of the message.
	ErrNotMessageSender = 2202

	// ErrMessageDeleted indicates an attempt to edit a message that was already deleted.
	ErrMessageDeleted = 2203

	// ErrMessageContentTooLong indicates the message content exceeded the maximum length limit.
	ErrMessageContentTooLong = 2204

	// ErrAttachmentCountInvalid indicates an invalid number of attachments on a message.
	ErrAttachmentCountInvalid = 2205

	// ErrAttachmentInvalid indicates attachment metadata failed validation.
	ErrAttachmentInvalid = 2206
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates the request is missing a valid identity.
	ErrUnauthorized = 3001

	// ErrInvalidUsername indicates the username failed format validation.
	ErrInvalidUsername = 3002

	// ErrInvalidPassword indicates the password failed format validation.
	ErrInvalidPassword = 3003

	// ErrUserAlreadyExists indicates the username is already taken.
	ErrUserAlreadyExists = 3004

	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = 3005

	// ErrUserNotFound indicates the requested user account does not exist.
	ErrUserNotFound = 3006

	// ErrSessionReplaced indicates the realtime connection was terminated because
	// the same user opened a newer connection.
	ErrSessionReplaced = 3007

	// ErrFileSizeTooLarge indicates an attachment exceeds the size limit.
	ErrFileSizeTooLarge = 3101

	// ErrFileStorageFailed indicates the storage service failed to presign or delete a file.
	ErrFileStorageFailed = 3102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrMessageStoreFailed indicates the message could not be persisted.
	ErrMessageStoreFailed = 5001
)
