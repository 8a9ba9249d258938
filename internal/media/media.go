// Package media prepares local files for the inline upload path: attachment
// bytes travel base64-encoded inside the send frame and come back as server
// paths on the confirmation.
package media

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nextvibe/chatsync/internal/store"
	"github.com/nextvibe/chatsync/internal/wire"
)

// EncodeAttachments reads the given local files and returns both the wire
// form (base64 payloads for the send frame) and the matching temporary store
// attachments, in lockstep order.
func EncodeAttachments(paths []string) ([]wire.Attachment, []store.MediaAttachment, error) {
	if len(paths) == 0 {
		return nil, nil, nil
	}

	attachments := make([]wire.Attachment, 0, len(paths))
	temp := make([]store.MediaAttachment, 0, len(paths))

	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read attachment %s: %w", path, err)
		}

		attachments = append(attachments, wire.Attachment{
			Data: base64.StdEncoding.EncodeToString(data),
			Type: detectType(data),
			Name: filepath.Base(path),
		})
		temp = append(temp, store.MediaAttachment{
			ID:      int64(-(i + 1)),
			FileURL: path,
			IsTemp:  true,
		})
	}

	return attachments, temp, nil
}

func detectType(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}
