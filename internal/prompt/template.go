// Package prompt loads versioned prompt templates and assembles the text sent
// to the image model. Assembly is a pure function of its inputs so a request
// can be replayed for debugging given the same template version and params.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

// Template is one versioned prompt template. Preset maps translate the short
// keys submitted by the client into model-facing descriptions.
type Template struct {
	Version      string            `yaml:"version"`
	Environments map[string]string `yaml:"environments"`
	Poses        map[string]string `yaml:"poses"`
	Framing      map[string]string `yaml:"framing"`
	Lighting     map[string]string `yaml:"lighting"`
	Ethnicities  map[string]string `yaml:"ethnicities"`
	HairStyles   map[string]string `yaml:"hair_styles"`
	HairColors   map[string]string `yaml:"hair_colors"`
	Quality      string            `yaml:"quality"`
	Output       string            `yaml:"output"`
	Negative     string            `yaml:"negative"`
}

var (
	cacheMu       sync.Mutex
	templateCache = map[string]*Template{}
)

// LoadTemplate parses the embedded template for the given version, e.g.
// "v0.1" resolves to templates/v0_1.yaml. Parsed templates are cached.
func LoadTemplate(version string) (*Template, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if t, ok := templateCache[version]; ok {
		return t, nil
	}

	filename := "templates/" + strings.ReplaceAll(version, ".", "_") + ".yaml"
	body, err := templatesFS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown prompt template version %q", domain.ErrValidation, version)
	}

	var t Template
	if err := yaml.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", filename, err)
	}

	templateCache[version] = &t
	return &t, nil
}
