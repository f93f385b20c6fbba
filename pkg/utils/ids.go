package utils

import "github.com/google/uuid"

// GenMessageID returns a new client-side message id. Ids are generated at
// send time and remain authoritative; no server-side remapping exists.
func GenMessageID() string {
	return "msg-" + uuid.NewString()
}

// GenAttachmentID returns a new locally unique attachment id.
func GenAttachmentID() string {
	return "att-" + uuid.NewString()
}
