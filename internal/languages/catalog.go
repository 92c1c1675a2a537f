package languages

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/exam-engine/internal/models"
)

// DefaultLanguage is the language a fresh workspace starts with
const DefaultLanguage = "python"

// Catalog holds the set of supported execution languages. It starts with the
// built-in set and can be extended or overridden from a YAML directory.
type Catalog struct {
	mu        sync.RWMutex
	languages map[string]*models.Language
}

// NewCatalog creates a catalog preloaded with the built-in languages
func NewCatalog() *Catalog {
	c := &Catalog{
		languages: make(map[string]*models.Language),
	}
	for _, lang := range builtins() {
		c.languages[lang.ID] = lang
	}
	return c
}

func builtins() []*models.Language {
	return []*models.Language{
		{ID: "python", Name: "Python", Extension: "py", DefaultFile: "main.py"},
		{ID: "javascript", Name: "JavaScript", Extension: "js", DefaultFile: "main.js"},
		{ID: "java", Name: "Java", Extension: "java", DefaultFile: "Main.java", Attachments: true},
		{ID: "cpp", Name: "C++", Extension: "cpp", DefaultFile: "main.cpp"},
		{ID: "c", Name: "C", Extension: "c", DefaultFile: "main.c"},
		{ID: "go", Name: "Go", Extension: "go", DefaultFile: "main.go"},
		{ID: "ruby", Name: "Ruby", Extension: "rb", DefaultFile: "main.rb"},
		{ID: "bash", Name: "Bash", Extension: "sh", DefaultFile: "main.sh"},
	}
}

// LoadFromDir merges language definitions from all YAML files in dir on top of
// the built-in set. Entries with an id matching a builtin replace it.
func (c *Catalog) LoadFromDir(dir string) error {
	slog.Info("loading language definitions", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := c.LoadFromFile(file); err != nil {
			slog.Warn("failed to load language file", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("language definitions loaded", "files", loaded)
	return nil
}

// LoadFromFile loads language definitions from a single YAML file. The file
// holds a `languages:` list.
func (c *Catalog) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var doc struct {
		Languages []*models.Language `yaml:"languages"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, lang := range doc.Languages {
		if lang.ID == "" {
			return fmt.Errorf("language id is required in %s", path)
		}
		if lang.DefaultFile == "" {
			lang.DefaultFile = "main." + lang.Extension
		}
		c.languages[lang.ID] = lang
		slog.Info("language loaded", "id", lang.ID, "default_file", lang.DefaultFile)
	}

	return nil
}

// Get retrieves a language by id, or nil if unsupported
func (c *Catalog) Get(id string) *models.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.languages[id]
}

// Supported reports whether id names a known language
func (c *Catalog) Supported(id string) bool {
	return c.Get(id) != nil
}

// AllowsAttachments reports whether runs in the given language may carry
// binary attachments
func (c *Catalog) AllowsAttachments(id string) bool {
	lang := c.Get(id)
	return lang != nil && lang.Attachments
}

// List returns all supported languages sorted by id
func (c *Catalog) List() []*models.Language {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*models.Language, 0, len(c.languages))
	for _, lang := range c.languages {
		result = append(result, lang)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
