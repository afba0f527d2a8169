package slackbot

import (
	"path/filepath"
	"strings"

	"github.com/slack-go/slack"
)

// imageExtensions are the file extensions accepted as photo evidence
// when a Slack upload carries no usable mimetype.
var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"heic": true,
	"webp": true,
}

// isImageFile reports whether a Slack file upload looks like a photo.
// Mimetype wins when present; otherwise the filetype field and the
// filename extension are checked.
func isImageFile(f slack.File) bool {
	if strings.HasPrefix(strings.ToLower(f.Mimetype), "image/") {
		return true
	}
	if imageExtensions[strings.ToLower(f.Filetype)] {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
	return imageExtensions[ext]
}

// hasImageAttachment reports whether any message in the slice carries at
// least one photo upload.
func hasImageAttachment(messages []slack.Message) bool {
	for _, msg := range messages {
		for _, f := range msg.Files {
			if isImageFile(f) {
				return true
			}
		}
	}
	return false
}
