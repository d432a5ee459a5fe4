package gmail

import (
	"encoding/base64"
	"log"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/emersion/go-message/mail"
	gmailapi "google.golang.org/api/gmail/v1"
)

func convertMessage(msg *gmailapi.Message) *Message {
	if msg == nil {
		return nil
	}
	out := &Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		Snippet:      msg.Snippet,
		Headers:      map[string]string{},
		InternalDate: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return out
	}

	for _, h := range msg.Payload.Headers {
		// First occurrence wins, matching how mail clients display headers.
		if _, ok := out.Headers[h.Name]; !ok {
			out.Headers[h.Name] = h.Value
		}
	}

	from := getHeader(msg.Payload.Headers, "From")
	out.SenderEmail, out.SenderName = parseFrom(from)
	out.To = getHeader(msg.Payload.Headers, "To")
	out.Subject = getHeader(msg.Payload.Headers, "Subject")

	body, isHTML := getEmailBody(msg.Payload)
	if isHTML {
		body = htmlToText(body)
	}
	out.Body = strings.TrimSpace(body)
	return out
}

func convertDraft(d *gmailapi.Draft) *Draft {
	if d == nil {
		return nil
	}
	return &Draft{ID: d.Id, Message: convertMessage(d.Message)}
}

func convertHistory(h *gmailapi.History) HistoryRecord {
	rec := HistoryRecord{ID: strconv.FormatUint(h.Id, 10)}
	for _, a := range h.MessagesAdded {
		if a.Message != nil {
			rec.MessagesAdded = append(rec.MessagesAdded, MessageRef{ID: a.Message.Id, ThreadID: a.Message.ThreadId, LabelIDs: a.Message.LabelIds})
		}
	}
	for _, d := range h.MessagesDeleted {
		if d.Message != nil {
			rec.MessagesDeleted = append(rec.MessagesDeleted, MessageRef{ID: d.Message.Id, ThreadID: d.Message.ThreadId, LabelIDs: d.Message.LabelIds})
		}
	}
	for _, l := range h.LabelsAdded {
		if l.Message != nil {
			rec.LabelsAdded = append(rec.LabelsAdded, LabelChange{MessageID: l.Message.Id, ThreadID: l.Message.ThreadId, LabelIDs: l.LabelIds})
		}
	}
	for _, l := range h.LabelsRemoved {
		if l.Message != nil {
			rec.LabelsRemoved = append(rec.LabelsRemoved, LabelChange{MessageID: l.Message.Id, ThreadID: l.Message.ThreadId, LabelIDs: l.LabelIds})
		}
	}
	return rec
}

// parseFrom splits a From header into address and display name. Unparseable
// values fall back to the raw header text.
func parseFrom(from string) (email, name string) {
	if from == "" {
		return "", ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		raw := strings.TrimSpace(from)
		if i := strings.Index(raw, "<"); i >= 0 {
			if j := strings.Index(raw[i:], ">"); j > 0 {
				return strings.ToLower(strings.TrimSpace(raw[i+1 : i+j])), strings.Trim(strings.TrimSpace(raw[:i]), `"`)
			}
		}
		return strings.ToLower(raw), ""
	}
	return strings.ToLower(addr.Address), addr.Name
}

func getHeader(headers []*gmailapi.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBody returns the best body part, preferring text/plain over HTML.
func getEmailBody(payload *gmailapi.MessagePart) (string, bool) {
	if len(payload.Parts) == 0 && payload.Body != nil && payload.Body.Data != "" {
		if data, ok := decodeBody(payload.Body.Data); ok {
			return data, payload.MimeType == "text/html"
		}
	}

	var htmlBody, plainBody string
	var findBody func(parts []*gmailapi.MessagePart)
	findBody = func(parts []*gmailapi.MessagePart) {
		for _, part := range parts {
			if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
				switch part.MimeType {
				case "text/plain":
					if plainBody == "" {
						plainBody, _ = decodeBody(part.Body.Data)
					}
				case "text/html":
					if htmlBody == "" {
						htmlBody, _ = decodeBody(part.Body.Data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, htmlBody != ""
}

func decodeBody(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}

func htmlToText(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		log.Printf("[Gmail] html conversion failed, using raw body: %v", err)
		return html
	}
	return md
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
