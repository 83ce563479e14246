package service

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/agentdesk/agentdesk/internal/model"
)

const (
	maxEmailLength        = 254
	maxUserNameLength     = 100
	maxImageURLLength     = 2048
	maxProjectNameLength  = 100
	maxDescriptionLength  = 2000
	maxTags               = 20
	maxTagLength          = 50
	maxFrameworkLength    = 50
	maxSettingsBytes      = 16 << 10
	maxTitleLength        = 200
	maxMessagesPerAppend  = 200
	maxMessageIDLength    = 128
	maxPartsPerMessage    = 100
	maxMCPNameLength      = 100
	maxServerURLLength    = 2048
	maxAuthTokenLength    = 4096
	authTokenHintLength   = 4
	minTokenLengthForHint = 12
)

// MCP config names: letters, digits, space, dot, dash, underscore.
var mcpNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 ._-]*$`)

// normalizeEmail trims and lowercases an email address and checks its shape.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalid("email", "is required")
	}
	if len(email) > maxEmailLength {
		return "", invalid("email", "is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "is not a valid address")
	}
	return email, nil
}

func validateUserName(name string) error {
	if utf8.RuneCountInString(name) > maxUserNameLength {
		return invalid("name", fmt.Sprintf("must be at most %d characters", maxUserNameLength))
	}
	return nil
}

func validateImageURL(image string) error {
	if image == "" {
		return nil
	}
	if len(image) > maxImageURLLength {
		return invalid("image", "is too long")
	}
	parsed, err := url.Parse(image)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return invalid("image", "must be an http(s) URL")
	}
	return nil
}

func validateProjectName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 {
		return invalid("name", "is required")
	}
	if n > maxProjectNameLength {
		return invalid("name", fmt.Sprintf("must be at most %d characters", maxProjectNameLength))
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return invalid("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}
	return nil
}

// normalizeTags trims, drops empties and de-duplicates while keeping order.
func normalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > maxTagLength {
			return nil, invalid("tags", fmt.Sprintf("each tag must be at most %d characters", maxTagLength))
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > maxTags {
		return nil, invalid("tags", fmt.Sprintf("at most %d tags allowed", maxTags))
	}
	return out, nil
}

func validateSettings(settings json.RawMessage) error {
	if len(settings) == 0 {
		return nil
	}
	if len(settings) > maxSettingsBytes {
		return invalid("settings", "is too large")
	}
	var obj map[string]any
	if err := json.Unmarshal(settings, &obj); err != nil {
		return invalid("settings", "must be a JSON object")
	}
	return nil
}

func validateShortField(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return invalid(field, fmt.Sprintf("must be at most %d characters", max))
	}
	return nil
}

func validateTitle(title string) error {
	return validateShortField("title", title, maxTitleLength)
}

// validateMessages checks a batch of incoming chat messages.
func validateMessages(messages []model.Message) error {
	if len(messages) > maxMessagesPerAppend {
		return invalid("messages", fmt.Sprintf("at most %d messages per request", maxMessagesPerAppend))
	}
	for i, msg := range messages {
		if len(msg.ID) > maxMessageIDLength {
			return invalid(fmt.Sprintf("messages[%d].id", i), "is too long")
		}
		if !model.IsValidRole(msg.Role) {
			return invalid(fmt.Sprintf("messages[%d].role", i), "must be user, assistant or system")
		}
		if len(msg.Parts) > maxPartsPerMessage {
			return invalid(fmt.Sprintf("messages[%d].parts", i), "too many parts")
		}
		for j, part := range msg.Parts {
			if part.Type == "" {
				return invalid(fmt.Sprintf("messages[%d].parts[%d].type", i, j), "is required")
			}
		}
	}
	return nil
}

func validateMCPName(name string) error {
	if name == "" {
		return invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxMCPNameLength {
		return invalid("name", fmt.Sprintf("must be at most %d characters", maxMCPNameLength))
	}
	if !mcpNameRegex.MatchString(name) {
		return invalid("name", "may contain letters, digits, spaces, dots, dashes and underscores")
	}
	return nil
}

func validateAuthToken(token string) error {
	if len(token) > maxAuthTokenLength {
		return invalid("auth_token", "is too long")
	}
	if strings.ContainsAny(token, "\r\n") {
		return invalid("auth_token", "must not contain line breaks")
	}
	return nil
}

// tokenHint returns the last characters of a token for display.
// Short tokens get no hint so that most of the secret is never exposed.
func tokenHint(token string) string {
	runes := []rune(token)
	if len(runes) < minTokenLengthForHint {
		return ""
	}
	return string(runes[len(runes)-authTokenHintLength:])
}

// truncateRunes returns s as valid UTF-8 cut to at most n runes.
func truncateRunes(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// titleFromMessages derives a conversation title from the first user text.
func titleFromMessages(messages []model.Message) string {
	for _, msg := range messages {
		if msg.Role != model.RoleUser {
			continue
		}
		for _, part := range msg.Parts {
			if part.Type != "text" {
				continue
			}
			text := strings.Join(strings.Fields(part.Text), " ")
			if text == "" {
				continue
			}
			if utf8.RuneCountInString(text) > 80 {
				runes := []rune(text)
				text = string(runes[:80]) + "…"
			}
			return text
		}
	}
	return ""
}
