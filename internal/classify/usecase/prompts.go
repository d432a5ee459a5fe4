package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"
)

const systemPromptTemplate = `You are an email classifier for a multilingual inbox (Czech, English, German, and others). Classify the email into exactly ONE category based on its content, regardless of language.

Categories:
- needs_response: Someone is asking a direct question, making a request, or the social context requires a reply
- action_required: I need to do something outside of email: attend a meeting, sign a document, approve something, complete a task with a deadline
- payment_request: Contains a payment request, invoice, billing statement, or amount due ("faktura", "invoice", "platba", "Rechnung")
- fyi: Newsletter, automated notification, CC'd thread where I'm not directly addressed, with no action needed
- waiting: I sent the last message in this thread and am awaiting a reply

Decision rules (in priority order):
1. Meeting or appointment requests -> action_required (even if phrased as a question)
2. Requests to sign, approve, confirm, or complete a task -> action_required
3. Invoices, payment amounts, billing -> payment_request (set vendor_name to the issuer)
4. Direct questions or personal requests requiring a reply -> needs_response
5. When uncertain between needs_response and fyi, prefer needs_response
6. Only classify as fyi if you are confident no response or action is needed
7. Automated senders, marketing, newsletters -> fyi
8. I sent the last message, no new reply -> waiting

Also select a communication style for the draft response. Available styles:
%s

Pick the style that best matches the email's tone and sender relationship. Use "%s" if unsure.

Respond with JSON only, with the keys category, confidence (high|medium|low), reasoning (brief, in English), detected_language (ISO code such as cs, en, de), resolved_style and vendor_name (empty unless payment_request).`

// maxBodyChars bounds the email body sent for classification.
const maxBodyChars = 2000

func buildSystemPrompt(styleNames []string, defaultStyle string) string {
	if len(styleNames) == 0 {
		styleNames = []string{"formal", "business", "informal"}
	}
	quoted := make([]string, len(styleNames))
	for i, n := range styleNames {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf(systemPromptTemplate, strings.Join(quoted, ", "), defaultStyle)
}

func buildUserMessage(meta *Metadata) string {
	var b strings.Builder
	if meta.SenderName != "" {
		fmt.Fprintf(&b, "From: %s <%s>\n", meta.SenderName, meta.SenderEmail)
	} else {
		fmt.Fprintf(&b, "From: %s\n", meta.SenderEmail)
	}
	fmt.Fprintf(&b, "Subject: %s\n", meta.Subject)
	count := meta.MessageCount
	if count < 1 {
		count = 1
	}
	fmt.Fprintf(&b, "Messages in thread: %d\n\n", count)

	content := meta.Body
	if content == "" {
		content = meta.Snippet
	}
	b.WriteString(truncate(content, maxBodyChars))
	return b.String()
}

func responseSchema() *llm.Schema {
	categories := make([]string, len(emaildomain.Categories))
	for i, c := range emaildomain.Categories {
		categories[i] = string(c)
	}
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"category":          map[string]any{"type": "string", "enum": categories},
			"confidence":        map[string]any{"type": "string", "enum": []string{"high", "medium", "low"}},
			"reasoning":         map[string]any{"type": "string"},
			"detected_language": map[string]any{"type": "string"},
			"resolved_style":    map[string]any{"type": "string"},
			"vendor_name":       map[string]any{"type": "string"},
		},
		"required":             []string{"category", "confidence", "reasoning", "detected_language", "resolved_style", "vendor_name"},
		"additionalProperties": false,
	}
	raw, _ := json.Marshal(schema)
	return &llm.Schema{Name: "email_classification", Schema: raw}
}

type llmVerdict struct {
	Category         string `json:"category"`
	Confidence       string `json:"confidence"`
	Reasoning        string `json:"reasoning"`
	DetectedLanguage string `json:"detected_language"`
	ResolvedStyle    string `json:"resolved_style"`
	VendorName       string `json:"vendor_name"`
}

// parseVerdict decodes the model output. Markdown code fences are tolerated.
func parseVerdict(raw string) (*llmVerdict, error) {
	text := llm.StripCodeFences(raw)

	var v llmVerdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, &llm.OutputParseError{Raw: raw, Err: err}
	}
	if _, ok := emaildomain.ParseCategory(v.Category); !ok {
		return nil, &llm.OutputParseError{Raw: raw, Err: fmt.Errorf("unknown category %q", v.Category)}
	}
	return &v, nil
}
