package usecase

import (
	"path"
	"strings"

	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/styles"
)

// DefaultLanguage is used when neither settings nor the model name one.
const DefaultLanguage = "cs"

// ResolveStyle picks the communication style for sender: exact sender
// override, then domain glob, then detected, then the default.
func ResolveStyle(sender string, settings *userdomain.UserSettings, detected string) string {
	if settings != nil {
		if v, ok := lookup(sender, settings.SenderStyles, settings.DomainStyles); ok {
			return v
		}
	}
	if detected = strings.TrimSpace(detected); detected != "" {
		return detected
	}
	return styles.DefaultStyle
}

// ResolveLanguage applies the same precedence to the reply language.
func ResolveLanguage(sender string, settings *userdomain.UserSettings, detected string) string {
	if settings != nil {
		if v, ok := lookup(sender, settings.SenderLanguages, settings.DomainLanguages); ok {
			return v
		}
	}
	if detected = strings.TrimSpace(detected); detected != "" {
		return strings.ToLower(detected)
	}
	return DefaultLanguage
}

func lookup(sender string, bySender, byDomain map[string]string) (string, bool) {
	sender = strings.ToLower(strings.TrimSpace(sender))
	for k, v := range bySender {
		if strings.ToLower(k) == sender && v != "" {
			return v, true
		}
	}
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return "", false
	}
	domain := sender[at+1:]
	for pattern, v := range byDomain {
		if ok, err := path.Match(strings.ToLower(pattern), domain); err == nil && ok && v != "" {
			return v, true
		}
	}
	return "", false
}
