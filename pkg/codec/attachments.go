// Package codec converts user-selected files into transport-safe inline
// attachments and back. Payloads are read fully into memory and
// base64-encoded; no attempt is made to bound size here, callers own any
// file count or size limits.
package codec

import (
	"encoding/base64"
	"fmt"
	"io"

	"chatsync/pkg/models"
	"chatsync/pkg/utils"
)

// File is a user-selected file handed to the send pipeline. Open returns a
// fresh reader over the file's content.
type File struct {
	Name string
	Mime string
	Open func() (io.ReadCloser, error)
}

// EncodeFiles reads each file fully and returns inline attachments in input
// order. Any read failure aborts the whole batch; nothing is partially
// attached.
func EncodeFiles(files []File) ([]models.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	atts := make([]models.Attachment, 0, len(files))
	for _, f := range files {
		att, err := encodeOne(f)
		if err != nil {
			return nil, fmt.Errorf("encode attachment %q: %w", f.Name, err)
		}
		atts = append(atts, att)
	}
	return atts, nil
}

func encodeOne(f File) (models.Attachment, error) {
	if f.Open == nil {
		return models.Attachment{}, fmt.Errorf("no content reader")
	}
	rc, err := f.Open()
	if err != nil {
		return models.Attachment{}, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{
		ID:   utils.GenAttachmentID(),
		Name: f.Name,
		Mime: f.Mime,
		Size: int64(len(raw)),
		Data: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// Decode returns the original byte content of an attachment.
func Decode(att models.Attachment) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %q: %w", att.Name, err)
	}
	return raw, nil
}
