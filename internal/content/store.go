// Package content implements the Content Store: loading file bytes (from
// disk or an inlined upload payload), hashing them for change detection,
// and detecting their language from a fixed extension table.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	cgerrors "github.com/cecon-labs/codegraph/internal/errors"
)

// Loaded is the result of a Content Store load operation.
type Loaded struct {
	AbsolutePath string
	Content      []byte
	Hash         string // SHA-256 hex
	Size         int64
	Language     string
	IsInlined    bool
}

// Store resolves, reads, and hashes file content for the indexing pipeline.
type Store struct {
	workspaceRoot string
}

// New creates a Content Store rooted at workspaceRoot.
func New(workspaceRoot string) *Store {
	return &Store{workspaceRoot: workspaceRoot}
}

// Load resolves pathOrID against the workspace root (if relative), reads its
// bytes (or decodes inlinePayload when provided), and computes its hash and
// detected language. inlinePayload, when non-empty, is a base64-encoded byte
// string; disk is never touched in that case, but the hash is still computed
// over the decoded bytes.
func (s *Store) Load(ctx context.Context, pathOrID string, inlinePayload string) (*Loaded, error) {
	absPath := pathOrID
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(s.workspaceRoot, absPath)
	}

	if inlinePayload != "" {
		raw, err := base64.StdEncoding.DecodeString(inlinePayload)
		if err != nil {
			return nil, cgerrors.ValidationError(cgerrors.ErrInvalidInput, "inlined payload is not valid base64").WithDetail("path", pathOrID)
		}
		if len(raw) == 0 {
			return nil, cgerrors.IOError(cgerrors.ErrEmptyFile, "inlined payload is empty").WithDetail("path", pathOrID)
		}
		return &Loaded{
			AbsolutePath: absPath,
			Content:      raw,
			Hash:         hashBytes(raw),
			Size:         int64(len(raw)),
			Language:     DetectLanguage(pathOrID),
			IsInlined:    true,
		}, nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cgerrors.IOError(cgerrors.ErrFileNotFound, "file not found").WithDetail("path", absPath)
		}
		return nil, cgerrors.IOError(cgerrors.ErrFileUnreadable, "cannot stat file").WithDetail("path", absPath)
	}
	if info.Size() == 0 {
		return nil, cgerrors.IOError(cgerrors.ErrEmptyFile, "file is empty").WithDetail("path", absPath)
	}

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, cgerrors.IOError(cgerrors.ErrFileUnreadable, "cannot read file").WithDetail("path", absPath)
	}

	return &Loaded{
		AbsolutePath: absPath,
		Content:      raw,
		Hash:         hashBytes(raw),
		Size:         info.Size(),
		Language:     DetectLanguage(absPath),
		IsInlined:    false,
	}, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// languageTable is the fixed extension -> language mapping (Glossary).
var languageTable = map[string]string{
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".py":   "python",
	".java": "java",
	".cpp":  "cpp",
	".cc":   "cpp",
	".c":    "c",
	".go":   "go",
	".rs":   "rust",
	".php":  "php",
	".rb":   "ruby",
	".cs":   "csharp",
	".swift": "swift",
	".kt":   "kotlin",
	".scala": "scala",
	".md":   "markdown",
	".mdx":  "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".xml":  "xml",
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".scss": "scss",
	".sql":  "sql",
}

// DetectLanguage resolves a language from a fixed extension table of 22
// languages, falling back to "plaintext" and recognizing a handful
// of filename patterns the extension table alone can't express.
func DetectLanguage(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".blade.php"):
		return "php"
	case strings.HasPrefix(base, "vite.config."):
		return "typescript"
	}

	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageTable[ext]; ok {
		return lang
	}
	return "plaintext"
}
