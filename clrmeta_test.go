package clrmeta_test

import (
	"path/filepath"
	"testing"

	"github.com/wippyai/clrmeta"
	"github.com/wippyai/clrmeta/internal/cli/clitest"
)

func TestOpen(t *testing.T) {
	path := clitest.Write(t, t.TempDir(), "Demo.dll", clitest.Demo())

	m, err := clrmeta.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := m.Assembly().Name(); got != "Demo" {
		t.Errorf("assembly = %q, want Demo", got)
	}
	if got := len(m.Types()); got != 4 {
		t.Errorf("types = %d, want 4", got)
	}

	if _, err := clrmeta.Open(filepath.Join(t.TempDir(), "missing.dll")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
