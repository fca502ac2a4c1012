package validation

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/amjacademy/messaging-backend/internal/models"
)

var messageTypes = map[models.MessageType]bool{
	models.TextMessage:     true,
	models.ImageMessage:    true,
	models.VideoMessage:    true,
	models.DocumentMessage: true,
}

func ValidMessageType(t models.MessageType) bool {
	return messageTypes[t]
}

// RequiresAttachment reports whether the type must carry a file URL.
func RequiresAttachment(t models.MessageType) bool {
	return messageTypes[t] && t != models.TextMessage
}

// ValidateFileURL accepts absolute http(s) URLs only; the blob store hands
// these to the client, the core never touches the bytes.
func ValidateFileURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func MaxMessageLength() int {
	maxStr := os.Getenv("MAX_MESSAGE_LENGTH")
	if maxStr == "" {
		return 4000
	}
	max, err := strconv.Atoi(maxStr)
	if err != nil || max < 1 {
		return 4000
	}
	return max
}

// TrimAndLimit trims whitespace and caps the string at max bytes, backing
// off to a rune boundary so truncation never emits invalid UTF-8.
func TrimAndLimit(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// ValidClientID accepts the correlation ids clients attach to appends.
// Kept permissive on purpose: clients usually send UUIDs but any 1-36 char
// token of letters, digits, dashes and underscores passes.
func ValidClientID(id string) bool {
	if id == "" || len(id) > 36 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
