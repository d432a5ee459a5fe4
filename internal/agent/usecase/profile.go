package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/landovsky/gmail-assistant-sub002/pkg/config"
)

const defaultMaxIterations = 10

// Profile is a runnable agent configuration.
type Profile struct {
	Name          string
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int
	SystemPrompt  string
	Tools         []string
	Preprocessor  string
}

// LoadProfiles resolves the configured profiles against the registry.
// Relative prompt files are read from baseDir. A profile naming an unknown
// tool is an error.
func LoadProfiles(cfg config.AgentConfig, registry *Registry, baseDir string) (map[string]*Profile, error) {
	out := make(map[string]*Profile, len(cfg.Profiles))
	for key, pc := range cfg.Profiles {
		name := pc.Name
		if name == "" {
			name = key
		}
		for _, tool := range pc.Tools {
			if _, ok := registry.Get(tool); !ok {
				return nil, fmt.Errorf("agent profile %q: unknown tool %q", name, tool)
			}
		}

		prompt := pc.SystemPrompt
		if pc.SystemPromptFile != "" {
			path := pc.SystemPromptFile
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("agent profile %q: reading system prompt: %w", name, err)
			}
			prompt = strings.TrimSpace(string(data))
		}

		p := &Profile{
			Name:          name,
			Model:         pc.Model,
			MaxTokens:     pc.MaxTokens,
			Temperature:   pc.Temperature,
			MaxIterations: pc.MaxIterations,
			SystemPrompt:  prompt,
			Tools:         append([]string(nil), pc.Tools...),
			Preprocessor:  pc.Preprocessor,
		}
		if p.MaxIterations <= 0 {
			p.MaxIterations = defaultMaxIterations
		}
		out[key] = p
	}
	return out, nil
}
