package usecase

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/landovsky/gmail-assistant-sub002/pkg/config"
)

// Routes a thread can take.
const (
	RoutePipeline = "pipeline"
	RouteAgent    = "agent"
)

// Meta is the message data routing rules look at.
type Meta struct {
	SenderEmail string
	Subject     string
	Body        string
	Headers     map[string]string
}

func (m *Meta) header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Decision is the outcome of routing one message.
type Decision struct {
	Route   string
	Profile string
	Rule    string
}

// IsAgent reports whether the message goes to an agent profile.
func (d Decision) IsAgent() bool {
	return d.Route == RouteAgent
}

type rule struct {
	config.RoutingRule
	headers map[string]*regexp.Regexp
}

// Router evaluates routing rules in order; the first match wins.
type Router struct {
	rules []rule
}

// NewRouter compiles the rules. Invalid header patterns and agent rules
// without a profile are rejected.
func NewRouter(cfg config.RoutingConfig) (*Router, error) {
	r := &Router{}
	for _, rc := range cfg.Rules {
		compiled := rule{RoutingRule: rc, headers: map[string]*regexp.Regexp{}}
		if rc.Route == RouteAgent && rc.Profile == "" {
			return nil, fmt.Errorf("routing rule %q: agent route needs a profile", rc.Name)
		}
		for name, pattern := range rc.Match.HeaderMatch {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("routing rule %q: header %s: %w", rc.Name, name, err)
			}
			compiled.headers[name] = re
		}
		r.rules = append(r.rules, compiled)
	}
	return r, nil
}

// Profiles returns the agent profiles the rules refer to.
func (r *Router) Profiles() []string {
	var out []string
	for _, rl := range r.rules {
		if rl.Route == RouteAgent {
			out = append(out, rl.Profile)
		}
	}
	return out
}

// Route picks the route for a message. Without a matching rule the standard
// pipeline runs.
func (r *Router) Route(meta *Meta) Decision {
	for _, rl := range r.rules {
		if rl.matches(meta) {
			log.Printf("[Routing] Matched rule %q: route=%s profile=%s", rl.Name, rl.Route, rl.Profile)
			return Decision{Route: rl.Route, Profile: rl.Profile, Rule: rl.Name}
		}
	}
	return Decision{Route: RoutePipeline, Rule: "default_fallback"}
}

func (rl *rule) matches(meta *Meta) bool {
	m := rl.Match
	if m.All {
		return true
	}
	if m.ForwardedFrom != "" {
		return forwardedFrom(strings.ToLower(m.ForwardedFrom), meta)
	}

	set := false
	sender := strings.ToLower(meta.SenderEmail)
	if m.SenderDomain != "" {
		set = true
		at := strings.LastIndex(sender, "@")
		if at < 0 || sender[at+1:] != strings.ToLower(m.SenderDomain) {
			return false
		}
	}
	if m.SenderEmail != "" {
		set = true
		if sender != strings.ToLower(m.SenderEmail) {
			return false
		}
	}
	if m.SubjectContains != "" {
		set = true
		if !strings.Contains(strings.ToLower(meta.Subject), strings.ToLower(m.SubjectContains)) {
			return false
		}
	}
	for name, re := range rl.headers {
		set = true
		if !re.MatchString(meta.header(name)) {
			return false
		}
	}
	return set
}

func forwardedFrom(target string, meta *Meta) bool {
	switch {
	case strings.Contains(strings.ToLower(meta.header("X-Forwarded-From")), target):
		return true
	case strings.ToLower(meta.SenderEmail) == target:
		return true
	case strings.Contains(strings.ToLower(meta.header("Reply-To")), target):
		return true
	}
	return strings.Contains(strings.ToLower(meta.Body), target)
}
