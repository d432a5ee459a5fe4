package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// ReplySubject prefixes subject with "Re:" unless it already has one.
func ReplySubject(subject string) string {
	s := strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(s), "re:") {
		return s
	}
	return "Re: " + s
}

// buildReply renders a plain-text reply as a base64url-encoded RFC 5322
// message, ready for the drafts API.
func buildReply(in DraftInput, now time.Time) (string, error) {
	var h mail.Header
	h.SetDate(now)
	if in.To != "" {
		if addrs, err := mail.ParseAddressList(in.To); err == nil {
			h.SetAddressList("To", addrs)
		} else {
			h.Set("To", in.To)
		}
	}
	h.SetSubject(ReplySubject(in.Subject))
	if in.InReplyTo != "" {
		h.Set("In-Reply-To", in.InReplyTo)
		refs := strings.TrimSpace(in.References)
		if !strings.Contains(refs, in.InReplyTo) {
			refs = strings.TrimSpace(refs + " " + in.InReplyTo)
		}
		h.Set("References", refs)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return "", fmt.Errorf("failed to create draft message: %w", err)
	}
	if _, err := io.WriteString(w, in.Body); err != nil {
		return "", fmt.Errorf("failed to write draft body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finish draft message: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf.Bytes()), nil
}
