package usecase

import (
	"fmt"
	"path"
	"strings"
)

// RuleResult is the verdict of the automation rule engine.
type RuleResult struct {
	IsAutomated bool
	// Decisive results are final; the LLM is not consulted.
	Decisive bool
	Rule     string
	Reason   string
}

const (
	RuleBlacklist = "blacklist"
	RuleSender    = "automated_sender"
	RuleHeader    = "automation_header"
)

var automatedSenderPatterns = []string{
	"noreply",
	"no-reply",
	"do-not-reply",
	"donotreply",
	"mailer-daemon",
	"postmaster",
	"notifications",
	"notification",
	"bounce",
}

// Evaluate detects machine-generated mail from the sender address and RFC
// headers. It performs no I/O. Checks run in order: user blacklist, sender
// patterns, headers.
func Evaluate(sender string, headers map[string]string, blacklist []string) RuleResult {
	sender = strings.ToLower(strings.TrimSpace(sender))

	if pattern, ok := matchBlacklist(sender, blacklist); ok {
		return RuleResult{
			IsAutomated: true,
			Decisive:    true,
			Rule:        RuleBlacklist,
			Reason:      fmt.Sprintf("Sender %s matched blacklist pattern %s", sender, pattern),
		}
	}

	for _, p := range automatedSenderPatterns {
		if strings.Contains(sender, p) {
			// A sender pattern alone is advisory; a header settles it.
			if reason, ok := automationHeader(headers); ok {
				return RuleResult{
					IsAutomated: true,
					Decisive:    true,
					Rule:        RuleHeader,
					Reason:      fmt.Sprintf("Automated email: %s (sender %s)", reason, sender),
				}
			}
			return RuleResult{
				IsAutomated: true,
				Rule:        RuleSender,
				Reason:      fmt.Sprintf("Automated sender: %s", sender),
			}
		}
	}

	if reason, ok := automationHeader(headers); ok {
		return RuleResult{
			IsAutomated: true,
			Decisive:    true,
			Rule:        RuleHeader,
			Reason:      "Automated email: " + reason,
		}
	}
	return RuleResult{Reason: "No automation detected"}
}

func matchBlacklist(sender string, blacklist []string) (string, bool) {
	for _, pattern := range blacklist {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		if ok, err := path.Match(p, sender); err == nil && ok {
			return pattern, true
		}
	}
	return "", false
}

func automationHeader(headers map[string]string) (string, bool) {
	get := func(name string) (string, bool) {
		for k, v := range headers {
			if strings.EqualFold(k, name) {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := get("Auto-Submitted"); ok && strings.HasPrefix(strings.ToLower(v), "auto-") {
		return "header Auto-Submitted: " + truncate(v, 80), true
	}
	if v, ok := get("Precedence"); ok {
		switch strings.ToLower(v) {
		case "bulk", "list", "junk":
			return "header Precedence: " + v, true
		}
	}
	for _, name := range []string{"List-Unsubscribe", "List-Id"} {
		if v, ok := get(name); ok {
			return "header " + name + ": " + truncate(v, 80), true
		}
	}
	return "", false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
