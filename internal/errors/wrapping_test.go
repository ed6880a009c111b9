package errors_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cecon-labs/codegraph/internal/content"
	"github.com/cecon-labs/codegraph/internal/preflight"
)

// TestErrorWrapping_Preflight verifies preflight errors are wrapped with context.
func TestErrorWrapping_Preflight(t *testing.T) {
	// MarkPassed should wrap os.MkdirAll errors
	err := preflight.MarkPassed("/nonexistent/deeply/nested/path/that/cannot/exist")
	if err == nil {
		t.Skip("Expected error creating marker in nonexistent path")
	}

	// Error should contain context about what operation failed
	errMsg := err.Error()
	if !strings.Contains(errMsg, "create") && !strings.Contains(errMsg, "marker") && !strings.Contains(errMsg, "directory") {
		t.Errorf("Error should contain context about creating marker directory, got: %s", errMsg)
	}
}

// TestErrorWrapping_ContentLoad verifies content store errors are wrapped with context.
func TestErrorWrapping_ContentLoad(t *testing.T) {
	store := content.New("/nonexistent/workspace/root")
	_, err := store.Load(context.Background(), "missing/file.go", "")
	if err == nil {
		t.Skip("Expected error loading from nonexistent source")
	}

	errMsg := err.Error()
	if !strings.Contains(errMsg, "load") && !strings.Contains(errMsg, "read") && !strings.Contains(errMsg, "no such file") {
		t.Errorf("Error should mention the read failure, got: %s", errMsg)
	}
}
