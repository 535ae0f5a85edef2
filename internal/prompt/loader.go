// Package prompt loads named contract-generation templates from YAML files.
// A prompts directory holds one file per namespace; each file maps prompt
// names to a system instruction, a content body, and a description. Specs are
// read once at startup and immutable afterwards.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSystemInstruction is used when a prompt file omits system_prompt.
const DefaultSystemInstruction = "You are an expert in Sui Move smart contract development."

// Spec is one loaded prompt template.
type Spec struct {
	ID                string
	SystemInstruction string
	ContentTemplate   string
	Description       string
}

// fileEntry is the YAML shape of a single prompt inside a namespace file.
type fileEntry struct {
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
	Content      string `yaml:"content"`
}

// Store holds all loaded prompt specs, keyed by "namespace.name".
type Store struct {
	specs map[string]Spec
}

// LoadDir reads every .yaml/.yml file under dir. The filename (minus
// extension) becomes the namespace.
func LoadDir(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("prompts directory: %w", err)
	}

	s := &Store{specs: make(map[string]Spec)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		namespace := strings.TrimSuffix(entry.Name(), ext)
		if err := s.loadFile(filepath.Join(dir, entry.Name()), namespace); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) loadFile(path, namespace string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prompt file: %w", err)
	}

	var entries map[string]fileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse prompt file %s: %w", path, err)
	}

	for name, entry := range entries {
		if strings.TrimSpace(entry.Content) == "" {
			return fmt.Errorf("prompt %s.%s has no content", namespace, name)
		}
		system := entry.SystemPrompt
		if system == "" {
			system = DefaultSystemInstruction
		}
		id := namespace + "." + name
		s.specs[id] = Spec{
			ID:                id,
			SystemInstruction: system,
			ContentTemplate:   entry.Content,
			Description:       entry.Description,
		}
	}
	return nil
}

// Get returns the spec for a "namespace.name" id.
func (s *Store) Get(id string) (Spec, error) {
	if strings.Count(id, ".") != 1 {
		return Spec{}, fmt.Errorf("prompt id %q must be in namespace.name format", id)
	}
	spec, ok := s.specs[id]
	if !ok {
		return Spec{}, fmt.Errorf("prompt %q not found", id)
	}
	return spec, nil
}

// List returns all loaded prompt ids, sorted.
func (s *Store) List() []string {
	ids := make([]string, 0, len(s.specs))
	for id := range s.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe returns the description for a prompt id, or the empty string.
func (s *Store) Describe(id string) string {
	return s.specs[id].Description
}
