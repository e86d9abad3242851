/*
Package randx provides generation of unique identifiers used by the server.
*/
package randx

import (
	"fmt"
	"path"

	"github.com/google/uuid"
)

// ConnectionID returns a unique identifier for a realtime connection, used to
// correlate log lines across the read and write pumps of one session.
func ConnectionID() string {
	return uuid.NewString()
}

// AttachmentKey builds the S3 object key for an attachment upload:
// "<conversationId>/<uuid><ext>". The extension is taken from the original
// file name so presigned downloads keep a usable name.
func AttachmentKey(conversationID int64, fileName string) string {
	return fmt.Sprintf("%d/%s%s", conversationID, uuid.NewString(), path.Ext(fileName))
}
