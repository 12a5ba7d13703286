package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateWorkspace(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"valid temp dir", tmp, false},
		{"empty path", "", true},
		{"relative path", "some/relative/dir", true},
		{"blocked root", "/etc", true},
		{"blocked filesystem root", "/", true},
		{"nonexistent", filepath.Join(tmp, "missing"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWorkspace(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWorkspace(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidateWorkspace_NotADirectory(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateWorkspace(file); err == nil {
		t.Error("expected error for a regular file")
	}
}
