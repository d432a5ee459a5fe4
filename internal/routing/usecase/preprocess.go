package usecase

import (
	"fmt"
	"regexp"
	"strings"
)

// Preprocessor names accepted in agent profiles.
const (
	PreprocessorDefault = "default"
	PreprocessorCrisp   = "crisp"
)

// CrispMessage is a helpdesk message forwarded by Crisp.
type CrispMessage struct {
	PatientName     string
	PatientEmail    string
	OriginalMessage string
}

var (
	crispNameRe      = regexp.MustCompile(`(?i)(?:From|Od|Name|Jméno):\s*([^\n]+)`)
	crispEmailRe     = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	crispSeparatorRe = regexp.MustCompile(`-{3,}|={3,}|_{3,}|—{3,}`)
)

// ParseCrisp extracts the customer and their message from a Crisp
// forwarded email. Parsing is best effort; the body is always kept.
func ParseCrisp(senderEmail, body string, headers map[string]string) *CrispMessage {
	msg := &CrispMessage{}
	if m := crispNameRe.FindStringSubmatch(body); m != nil {
		msg.PatientName = strings.TrimSpace(m[1])
	}

	meta := &Meta{Headers: headers}
	if addr := crispEmailRe.FindString(meta.header("Reply-To")); addr != "" {
		msg.PatientEmail = addr
	}
	if msg.PatientEmail == "" {
		for _, addr := range crispEmailRe.FindAllString(body, -1) {
			if !strings.EqualFold(addr, senderEmail) {
				msg.PatientEmail = addr
				break
			}
		}
	}

	if parts := crispSeparatorRe.Split(body, 2); len(parts) > 1 {
		msg.OriginalMessage = strings.TrimSpace(parts[1])
	} else {
		msg.OriginalMessage = stripMetadataLines(body)
	}
	if msg.OriginalMessage == "" {
		msg.OriginalMessage = strings.TrimSpace(body)
	}
	return msg
}

// stripMetadataLines drops name and address lines at the top of body.
func stripMetadataLines(body string) string {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	for i, line := range lines {
		if startsWith(crispNameRe, line) || startsWith(crispEmailRe, line) {
			continue
		}
		return strings.TrimSpace(strings.Join(lines[i:], "\n"))
	}
	return ""
}

func startsWith(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0
}

// Format renders the message as agent input.
func (c *CrispMessage) Format(subject string) string {
	parts := []string{"Subject: " + subject}
	if c.PatientName != "" {
		parts = append(parts, "Patient name: "+c.PatientName)
	}
	if c.PatientEmail != "" {
		parts = append(parts, "Patient email: "+c.PatientEmail)
	}
	parts = append(parts, "", "Message:", c.OriginalMessage)
	return strings.Join(parts, "\n")
}

// Preprocess turns a message into the agent's first user message.
func Preprocess(name string, meta *Meta) (string, error) {
	switch name {
	case "", PreprocessorDefault:
		return fmt.Sprintf("From: %s\nSubject: %s\n\n%s", meta.SenderEmail, meta.Subject, meta.Body), nil
	case PreprocessorCrisp:
		return ParseCrisp(meta.SenderEmail, meta.Body, meta.Headers).Format(meta.Subject), nil
	}
	return "", fmt.Errorf("unknown preprocessor %q", name)
}
