package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config represents the complete codegraph configuration. Field groups and
// option keys mirror the Glossary's Options list (indexing.*, embeddings.*,
// databases.*, queue.*) verbatim; anything not named there (Paths, Logging)
// is ambient tooling this config layer also happens to carry.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Databases  DatabasesConfig  `yaml:"databases" json:"databases"`
	Queue      QueueConfig      `yaml:"queue" json:"queue"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures which paths to include and exclude, on top of
// `.gitignore`/`.cappyignore` (§6's Ignore files).
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexingConfig configures what gets indexed and how it is chunked, per
// the Glossary's `indexing.*` keys.
type IndexingConfig struct {
	// EnabledFileTypes restricts indexing to these extensions (empty means
	// every language the Parser Registry recognizes).
	EnabledFileTypes []string       `yaml:"enabledFileTypes" json:"enabledFileTypes"`
	Chunking         ChunkingConfig `yaml:"chunking" json:"chunking"`
	LLM              LLMConfig      `yaml:"llm" json:"llm"`
}

// ChunkingConfig configures per-language chunking behavior, per the
// Glossary's `indexing.chunking.*` keys.
type ChunkingConfig struct {
	TypeScript TypeScriptChunkingConfig `yaml:"typescript" json:"typescript"`
	Markdown   MarkdownChunkingConfig   `yaml:"markdown" json:"markdown"`
}

// TypeScriptChunkingConfig configures symbol-level chunking for
// TypeScript/JavaScript sources.
type TypeScriptChunkingConfig struct {
	ExtractJSDoc bool `yaml:"extractJSDoc" json:"extractJSDoc"`
	ExtractCode  bool `yaml:"extractCode" json:"extractCode"`
}

// MarkdownChunkingConfig configures the Markdown chunker's strategy.
type MarkdownChunkingConfig struct {
	// Strategy selects the chunking mode; "hybrid" is the only value the
	// Glossary defines (header-aware sectioning with a fixed-window
	// fallback for headerless documents).
	Strategy       string `yaml:"strategy" json:"strategy"`
	MaxTokens      int    `yaml:"maxTokens" json:"maxTokens"`
	OverlapTokens  int    `yaml:"overlapTokens" json:"overlapTokens"`
	RespectHeaders bool   `yaml:"respectHeaders" json:"respectHeaders"`
}

// LLMConfig configures optional LLM-generated contextual prefixes for
// chunks, per the Glossary's `indexing.llm.*` keys.
type LLMConfig struct {
	// EnabledFor maps a language name (typescript, javascript, markdown) to
	// whether contextual prefixing runs for it.
	EnabledFor          map[string]bool `yaml:"enabledFor" json:"enabledFor"`
	BatchSize           int             `yaml:"batchSize" json:"batchSize"`
	MaxTokensPerRequest int             `yaml:"maxTokensPerRequest" json:"maxTokensPerRequest"`
}

// EmbeddingsConfig configures the Embedding Service port, per the
// Glossary's `embeddings.*` keys.
type EmbeddingsConfig struct {
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batchSize" json:"batchSize"`
}

// DatabasesConfig configures the storage backends, per the Glossary's
// `databases.*` keys.
type DatabasesConfig struct {
	Graph GraphDatabaseConfig `yaml:"graph" json:"graph"`
}

// GraphDatabaseConfig configures the Graph Store's SQLite backing file,
// per the Glossary's `databases.graph.*` keys.
type GraphDatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
	// BufferPoolSize is a human-readable size string (e.g. "64MB"),
	// mirroring the Glossary's string-typed `databases.graph.bufferPoolSize`.
	BufferPoolSize string `yaml:"bufferPoolSize" json:"bufferPoolSize"`
}

// QueueConfig configures the Processing Queue, per the Glossary's
// `queue.*` keys.
type QueueConfig struct {
	Concurrency      int `yaml:"concurrency" json:"concurrency"`
	MaxRetries       int `yaml:"maxRetries" json:"maxRetries"`
	RetryDelayMillis int `yaml:"retryDelayMillis" json:"retryDelayMillis"`
}

// LoggingConfig configures the ambient slog setup (§4.0); not part of the
// Glossary's Options list, carried the way the teacher carries its own
// logging config regardless of domain scope.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Indexing: IndexingConfig{
			EnabledFileTypes: []string{},
			Chunking: ChunkingConfig{
				TypeScript: TypeScriptChunkingConfig{
					ExtractJSDoc: true,
					ExtractCode:  true,
				},
				Markdown: MarkdownChunkingConfig{
					Strategy:       "hybrid",
					MaxTokens:      512,
					OverlapTokens:  64,
					RespectHeaders: true,
				},
			},
			LLM: LLMConfig{
				EnabledFor: map[string]bool{
					"typescript": false,
					"javascript": false,
					"markdown":   true,
				},
				BatchSize:           8,
				MaxTokensPerRequest: 4000,
			},
		},
		Embeddings: EmbeddingsConfig{
			Model:      "qwen3-embedding:8b",
			Dimensions: 0, // Auto-detect from embedder
			BatchSize:  32,
		},
		Databases: DatabasesConfig{
			Graph: GraphDatabaseConfig{
				Path:           "",
				BufferPoolSize: "64MB",
			},
		},
		Queue: QueueConfig{
			Concurrency:      runtime.NumCPU(),
			MaxRetries:       3,
			RetryDelayMillis: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/codegraph/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/codegraph/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codegraph", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codegraph", "config.yaml")
	}
	return filepath.Join(home, ".config", "codegraph", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil // No user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the workspace rooted at dir, applying
// sources in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/codegraph/config.yaml)
//  3. Workspace config (.codegraph.yaml in the workspace root)
//  4. Environment variables (CODEGRAPH_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .codegraph.yaml or
// .codegraph.yml in the workspace root.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".codegraph.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".codegraph.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil // No config file is fine - use defaults
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	// Indexing
	if len(other.Indexing.EnabledFileTypes) > 0 {
		c.Indexing.EnabledFileTypes = other.Indexing.EnabledFileTypes
	}
	if other.Indexing.Chunking.Markdown.Strategy != "" {
		c.Indexing.Chunking.Markdown.Strategy = other.Indexing.Chunking.Markdown.Strategy
	}
	if other.Indexing.Chunking.Markdown.MaxTokens != 0 {
		c.Indexing.Chunking.Markdown.MaxTokens = other.Indexing.Chunking.Markdown.MaxTokens
	}
	if other.Indexing.Chunking.Markdown.OverlapTokens != 0 {
		c.Indexing.Chunking.Markdown.OverlapTokens = other.Indexing.Chunking.Markdown.OverlapTokens
	}
	if other.Indexing.LLM.EnabledFor != nil {
		c.Indexing.LLM.EnabledFor = other.Indexing.LLM.EnabledFor
	}
	if other.Indexing.LLM.BatchSize != 0 {
		c.Indexing.LLM.BatchSize = other.Indexing.LLM.BatchSize
	}
	if other.Indexing.LLM.MaxTokensPerRequest != 0 {
		c.Indexing.LLM.MaxTokensPerRequest = other.Indexing.LLM.MaxTokensPerRequest
	}

	// Embeddings
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}

	// Databases
	if other.Databases.Graph.Path != "" {
		c.Databases.Graph.Path = other.Databases.Graph.Path
	}
	if other.Databases.Graph.BufferPoolSize != "" {
		c.Databases.Graph.BufferPoolSize = other.Databases.Graph.BufferPoolSize
	}

	// Queue
	if other.Queue.Concurrency != 0 {
		c.Queue.Concurrency = other.Queue.Concurrency
	}
	if other.Queue.MaxRetries != 0 {
		c.Queue.MaxRetries = other.Queue.MaxRetries
	}
	if other.Queue.RetryDelayMillis != 0 {
		c.Queue.RetryDelayMillis = other.Queue.RetryDelayMillis
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies CODEGRAPH_* environment variable overrides for
// the handful of hot-path tunables, mirroring the teacher's env-var
// precedence scheme for its own search weights.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODEGRAPH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CODEGRAPH_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("CODEGRAPH_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("CODEGRAPH_QUEUE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Queue.MaxRetries = n
		}
	}
	if v := os.Getenv("CODEGRAPH_DATABASES_GRAPH_PATH"); v != "" {
		c.Databases.Graph.Path = v
	}
	if v := os.Getenv("CODEGRAPH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot finds the project root directory.
// It looks for .git directory or .codegraph.yaml/.yml file by walking up
// the directory tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".codegraph.yaml")) ||
			fileExists(filepath.Join(currentDir, ".codegraph.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil // Reached root, return original directory
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"} // Next.js, etc.

	var found []string

	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}

	return found
}

// DiscoverDocsDirs discovers documentation directories in the project.
func DiscoverDocsDirs(dir string) []string {
	commonDocDirs := []string{"docs", "doc"}
	commonDocFiles := []string{"README.md", "readme.md", "README.markdown"}

	var found []string

	for _, d := range commonDocDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	for _, f := range commonDocFiles {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break // Only add one README
		}
	}

	return found
}

// isNextJS checks if the project is a Next.js project.
func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Queue.Concurrency < 0 {
		return fmt.Errorf("queue.concurrency must be non-negative, got %d", c.Queue.Concurrency)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.maxRetries must be non-negative, got %d", c.Queue.MaxRetries)
	}
	if c.Queue.RetryDelayMillis < 0 {
		return fmt.Errorf("queue.retryDelayMillis must be non-negative, got %d", c.Queue.RetryDelayMillis)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 0 {
		return fmt.Errorf("embeddings.batchSize must be non-negative, got %d", c.Embeddings.BatchSize)
	}

	if c.Indexing.Chunking.Markdown.Strategy != "" && c.Indexing.Chunking.Markdown.Strategy != "hybrid" {
		return fmt.Errorf("indexing.chunking.markdown.strategy must be 'hybrid', got %s", c.Indexing.Chunking.Markdown.Strategy)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// MergeNewDefaults adds new default fields while preserving existing
// values, returning the list of field names that were added with their
// default values. Used when upgrading a workspace written by an older
// version of the config schema.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Queue.Concurrency == 0 {
		c.Queue.Concurrency = defaults.Queue.Concurrency
		added = append(added, "queue.concurrency")
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = defaults.Queue.MaxRetries
		added = append(added, "queue.maxRetries")
	}
	if c.Queue.RetryDelayMillis == 0 {
		c.Queue.RetryDelayMillis = defaults.Queue.RetryDelayMillis
		added = append(added, "queue.retryDelayMillis")
	}
	if c.Databases.Graph.BufferPoolSize == "" {
		c.Databases.Graph.BufferPoolSize = defaults.Databases.Graph.BufferPoolSize
		added = append(added, "databases.graph.bufferPoolSize")
	}
	if c.Indexing.Chunking.Markdown.Strategy == "" {
		c.Indexing.Chunking.Markdown.Strategy = defaults.Indexing.Chunking.Markdown.Strategy
		added = append(added, "indexing.chunking.markdown.strategy")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		added = append(added, "logging.level")
	}

	return added
}
