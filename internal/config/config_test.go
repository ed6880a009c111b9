package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// AC01: Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	// Indexing defaults
	assert.Empty(t, cfg.Indexing.EnabledFileTypes)
	assert.True(t, cfg.Indexing.Chunking.TypeScript.ExtractJSDoc)
	assert.True(t, cfg.Indexing.Chunking.TypeScript.ExtractCode)
	assert.Equal(t, "hybrid", cfg.Indexing.Chunking.Markdown.Strategy)
	assert.Equal(t, 512, cfg.Indexing.Chunking.Markdown.MaxTokens)
	assert.Equal(t, 64, cfg.Indexing.Chunking.Markdown.OverlapTokens)
	assert.True(t, cfg.Indexing.Chunking.Markdown.RespectHeaders)
	assert.True(t, cfg.Indexing.LLM.EnabledFor["markdown"])
	assert.False(t, cfg.Indexing.LLM.EnabledFor["typescript"])
	assert.Equal(t, 8, cfg.Indexing.LLM.BatchSize)
	assert.Equal(t, 4000, cfg.Indexing.LLM.MaxTokensPerRequest)

	// Embeddings defaults
	assert.Equal(t, "qwen3-embedding:8b", cfg.Embeddings.Model)
	assert.Equal(t, 0, cfg.Embeddings.Dimensions) // Auto-detect from embedder
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)

	// Databases defaults
	assert.Equal(t, "64MB", cfg.Databases.Graph.BufferPoolSize)

	// Queue defaults
	assert.Equal(t, runtime.NumCPU(), cfg.Queue.Concurrency)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 500, cfg.Queue.RetryDelayMillis)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)

	// Paths defaults
	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/.git/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/vendor/**")
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

// =============================================================================
// AC02: Configuration File Loading Tests
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	// Given: a directory with no .codegraph.yaml
	tmpDir := t.TempDir()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are returned without error
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
queue:
  concurrency: 4
  maxRetries: 5
  retryDelayMillis: 1000
embeddings:
  batchSize: 64
`
	err := os.WriteFile(filepath.Join(tmpDir, ".codegraph.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 1000, cfg.Queue.RetryDelayMillis)
	assert.Equal(t, 64, cfg.Embeddings.BatchSize)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
embeddings:
  model: all-minilm
`
	err := os.WriteFile(filepath.Join(tmpDir, ".codegraph.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "all-minilm", cfg.Embeddings.Model)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := `
version: 1
embeddings:
  model: from-yaml
`
	ymlContent := `
version: 1
embeddings:
  model: from-yml
`
	err := os.WriteFile(filepath.Join(tmpDir, ".codegraph.yaml"), []byte(yamlContent), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, ".codegraph.yml"), []byte(ymlContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Embeddings.Model)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
queue:
  concurrency: [invalid yaml syntax
`
	err := os.WriteFile(filepath.Join(tmpDir, ".codegraph.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "parse")
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
queue:
  concurrency: "not-a-number"
`
	err := os.WriteFile(filepath.Join(tmpDir, ".codegraph.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidMarkdownStrategy_FailsValidation(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
version: 1
indexing:
  chunking:
    markdown:
      strategy: windowed
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".codegraph.yaml"), []byte(content), 0o644))

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "strategy")
}

// =============================================================================
// AC03: Project Type Detection Tests
// =============================================================================

func TestDetectProjectType_GoMod_ReturnsGo(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte("module test"), 0o644)
	require.NoError(t, err)

	projectType := DetectProjectType(tmpDir)

	assert.Equal(t, ProjectTypeGo, projectType)
}

func TestDetectProjectType_PackageJson_ReturnsNode(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "package.json"), []byte("{}"), 0o644)
	require.NoError(t, err)

	projectType := DetectProjectType(tmpDir)

	assert.Equal(t, ProjectTypeNode, projectType)
}

func TestDetectProjectType_PyprojectToml_ReturnsPython(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "pyproject.toml"), []byte("[project]"), 0o644)
	require.NoError(t, err)

	projectType := DetectProjectType(tmpDir)

	assert.Equal(t, ProjectTypePython, projectType)
}

func TestDetectProjectType_RequirementsTxt_ReturnsPython(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "requirements.txt"), []byte("requests==2.0"), 0o644)
	require.NoError(t, err)

	projectType := DetectProjectType(tmpDir)

	assert.Equal(t, ProjectTypePython, projectType)
}

func TestDetectProjectType_NoMarkerFiles_ReturnsUnknown(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "random.txt"), []byte("hello"), 0o644)
	require.NoError(t, err)

	projectType := DetectProjectType(tmpDir)

	assert.Equal(t, ProjectTypeUnknown, projectType)
}

func TestDetectProjectType_Priority_GoOverNode(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte("module test"), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, "package.json"), []byte("{}"), 0o644)
	require.NoError(t, err)

	projectType := DetectProjectType(tmpDir)

	assert.Equal(t, ProjectTypeGo, projectType)
}

// =============================================================================
// AC04: Directory Auto-Detection Tests
// =============================================================================

func TestFindProjectRoot_GitDirectory_ReturnsGitRoot(t *testing.T) {
	tmpDir := t.TempDir()
	gitDir := filepath.Join(tmpDir, ".git")
	nestedDir := filepath.Join(tmpDir, "src", "internal")
	require.NoError(t, os.Mkdir(gitDir, 0o755))
	require.NoError(t, os.MkdirAll(nestedDir, 0o755))

	root, err := FindProjectRoot(nestedDir)

	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_ConfigFile_ReturnsConfigLocation(t *testing.T) {
	tmpDir := t.TempDir()
	nestedDir := filepath.Join(tmpDir, "src", "internal")
	require.NoError(t, os.MkdirAll(nestedDir, 0o755))
	err := os.WriteFile(filepath.Join(tmpDir, ".codegraph.yaml"), []byte("version: 1"), 0o644)
	require.NoError(t, err)

	root, err := FindProjectRoot(nestedDir)

	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestFindProjectRoot_NoMarkers_ReturnsCurrentDir(t *testing.T) {
	tmpDir := t.TempDir()

	root, err := FindProjectRoot(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, tmpDir, root)
}

func TestDiscoverSourceDirs_FindsCommonDirs(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "src"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "lib"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "internal"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "cmd"), 0o755))

	dirs := DiscoverSourceDirs(tmpDir)

	assert.Contains(t, dirs, "src")
	assert.Contains(t, dirs, "lib")
	assert.Contains(t, dirs, "internal")
	assert.Contains(t, dirs, "cmd")
}

func TestDiscoverDocsDirs_FindsDocDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "docs"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "doc"), 0o755))
	err := os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("# Title"), 0o644)
	require.NoError(t, err)

	dirs := DiscoverDocsDirs(tmpDir)

	assert.Contains(t, dirs, "docs")
	assert.Contains(t, dirs, "doc")
	assert.Contains(t, dirs, "README.md")
}

func TestDiscoverSourceDirs_NextJS_FindsAppAndPages(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "package.json"), []byte(`{"dependencies":{"next":"*"}}`), 0o644)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "app"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "pages"), 0o755))

	dirs := DiscoverSourceDirs(tmpDir)

	assert.Contains(t, dirs, "app")
	assert.Contains(t, dirs, "pages")
}

// =============================================================================
// AC05: Environment Variable Override Tests
// =============================================================================

func TestLoad_EnvVarOverridesModel(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CODEGRAPH_EMBEDDINGS_MODEL", "all-minilm")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "all-minilm", cfg.Embeddings.Model)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CODEGRAPH_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvVarOverridesQueueConcurrency(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
queue:
  concurrency: 2
`
	err := os.WriteFile(filepath.Join(tmpDir, ".codegraph.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("CODEGRAPH_QUEUE_CONCURRENCY", "8")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Queue.Concurrency)
}

func TestLoad_EnvVarOverridesGraphPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CODEGRAPH_DATABASES_GRAPH_PATH", "/tmp/custom-graph.db")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-graph.db", cfg.Databases.Graph.Path)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CODEGRAPH_EMBEDDINGS_MODEL", "")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "qwen3-embedding:8b", cfg.Embeddings.Model)
}

// =============================================================================
// AC06: User/Global Configuration Tests
// =============================================================================

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	path := GetUserConfigPath()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expected := filepath.Join(home, ".config", "codegraph", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	customConfig := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", customConfig)

	path := GetUserConfigPath()

	expected := filepath.Join(customConfig, "codegraph", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	dir := GetUserConfigDir()
	path := GetUserConfigPath()

	assert.Equal(t, filepath.Dir(path), dir)
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	emptyDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", emptyDir)

	exists := UserConfigExists()

	assert.False(t, exists)
}

func TestUserConfigExists_ReturnsTrueWhenPresent(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	codegraphDir := filepath.Join(configDir, "codegraph")
	require.NoError(t, os.MkdirAll(codegraphDir, 0o755))
	configPath := filepath.Join(codegraphDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1"), 0o644))

	exists := UserConfigExists()

	assert.True(t, exists)
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	codegraphDir := filepath.Join(configDir, "codegraph")
	require.NoError(t, os.MkdirAll(codegraphDir, 0o755))
	userConfig := `
version: 1
databases:
  graph:
    path: /custom/graph.db
`
	require.NoError(t, os.WriteFile(filepath.Join(codegraphDir, "config.yaml"), []byte(userConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "/custom/graph.db", cfg.Databases.Graph.Path)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	codegraphDir := filepath.Join(configDir, "codegraph")
	require.NoError(t, os.MkdirAll(codegraphDir, 0o755))
	userConfig := `
version: 1
embeddings:
  model: user-model
queue:
  maxRetries: 9
`
	require.NoError(t, os.WriteFile(filepath.Join(codegraphDir, "config.yaml"), []byte(userConfig), 0o644))

	projectConfig := `
version: 1
embeddings:
  model: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".codegraph.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
	// User config's queue setting is still used (not overridden by project)
	assert.Equal(t, 9, cfg.Queue.MaxRetries)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("CODEGRAPH_EMBEDDINGS_MODEL", "env-model")

	codegraphDir := filepath.Join(configDir, "codegraph")
	require.NoError(t, os.MkdirAll(codegraphDir, 0o755))
	userConfig := `
version: 1
embeddings:
  model: user-model
`
	require.NoError(t, os.WriteFile(filepath.Join(codegraphDir, "config.yaml"), []byte(userConfig), 0o644))

	projectConfig := `
version: 1
embeddings:
  model: project-model
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".codegraph.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Embeddings.Model)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	codegraphDir := filepath.Join(configDir, "codegraph")
	require.NoError(t, os.MkdirAll(codegraphDir, 0o755))
	invalidConfig := `
version: 1
embeddings:
  model: [invalid yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(codegraphDir, "config.yaml"), []byte(invalidConfig), 0o644))

	cfg, err := Load(projectDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "user config")
}
