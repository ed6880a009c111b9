// Package loader implements the Content Loader & LOD port (component O):
// a line-range snippet cache backed by an LRU, grounded on the same
// hashicorp/golang-lru/v2 cache the teacher's scanner uses for gitignore
// matchers, plus a Level-of-Detail pass over graph subgraphs for
// visualization callers.
package loader

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheCapacity is the default number of cached snippets, per
// §4.14.
const DefaultCacheCapacity = 100

// ChunkRef identifies a snippet to load: a file path and an inclusive
// line range.
type ChunkRef struct {
	Path      string // workspace-relative
	LineStart int    // 1-indexed
	LineEnd   int    // inclusive
}

// Loader reads workspace-relative file content and caches line-range
// snippets by `<path>:<start>-<end>`, evicting the oldest last-accessed
// entry once the cache is full. Guarded by a single mutex, per §5's
// "Content Loader LRU is guarded by a single mutex."
type Loader struct {
	root  string
	cache *lru.Cache[string, string]
	mu    sync.Mutex
}

// New creates a Loader rooted at workspace root, with the given cache
// capacity (<=0 uses DefaultCacheCapacity).
func New(root string, capacity int) (*Loader, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	cache, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, fmt.Errorf("create snippet cache: %w", err)
	}
	return &Loader{root: root, cache: cache}, nil
}

func snippetKey(ref ChunkRef) string {
	return fmt.Sprintf("%s:%d-%d", ref.Path, ref.LineStart, ref.LineEnd)
}

// LoadSnippet reads the file and slices [LineStart, LineEnd], per
// §4.14. Results are cached by the chunk ref's key; repeat calls for
// the same ref hit the cache until invalidated.
func (l *Loader) LoadSnippet(ctx context.Context, ref ChunkRef) (string, error) {
	key := snippetKey(ref)

	l.mu.Lock()
	if cached, ok := l.cache.Get(key); ok {
		l.mu.Unlock()
		return cached, nil
	}
	l.mu.Unlock()

	content, err := l.readLines(ref.Path, ref.LineStart, ref.LineEnd)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	l.cache.Add(key, content)
	l.mu.Unlock()

	return content, nil
}

func (l *Loader) readLines(path string, start, end int) (string, error) {
	if start <= 0 {
		start = 1
	}
	if end < start {
		end = start
	}

	f, err := os.Open(filepath.Join(l.root, path))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	line := 0
	for scanner.Scan() {
		line++
		if line < start {
			continue
		}
		if line > end {
			break
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return strings.Join(lines, "\n"), nil
}

// InvalidateFile drops every cached snippet belonging to path, per
// §4.14's `invalidateFile(path)`.
func (l *Loader) InvalidateFile(path string) {
	prefix := path + ":"

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range l.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			l.cache.Remove(key)
		}
	}
}

// Len returns the number of snippets currently cached, for diagnostics
// and tests.
func (l *Loader) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Len()
}
