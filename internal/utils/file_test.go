package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateInputFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "resume.pdf")
	if err := os.WriteFile(existing, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	tests := []struct {
		name        string
		filename    string
		expectError bool
	}{
		{"existing file", existing, false},
		{"empty filename", "", true},
		{"missing file", filepath.Join(dir, "nope.pdf"), true},
		{"directory instead of file", dir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInputFile(tt.filename)
			if tt.expectError && err == nil {
				t.Error("expected an error")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateOutputFileCreatesDirectories(t *testing.T) {
	dir := t.TempDir()

	if err := ValidateOutputFile(""); err != nil {
		t.Errorf("empty filename means stdout, got error: %v", err)
	}

	nested := filepath.Join(dir, "a", "b", "out.json")
	if err := ValidateOutputFile(nested); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(nested)); err != nil {
		t.Errorf("expected the parent directory to be created: %v", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        string
		expectError bool
	}{
		{"plain name", "resume.pdf", "resume.pdf", false},
		{"slashes replaced", "dir/resume.pdf", "dir_resume.pdf", false},
		{"backslashes replaced", `dir\resume.pdf`, "dir_resume.pdf", false},
		{"trimmed", "  resume.pdf  ", "resume.pdf", false},
		{"traversal rejected", "../resume.pdf", "", true},
		{"empty rejected", "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeFileName(tt.input)
			if tt.expectError {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatFileSize(tt.size); got != tt.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}

func TestFileExtensionHelpers(t *testing.T) {
	if got := GetFileExtension("Resume.PDF"); got != ".pdf" {
		t.Errorf("GetFileExtension = %q, want .pdf", got)
	}
	if !IsPDFFile("resume.pdf") || !IsPDFFile("RESUME.PDF") {
		t.Error("expected pdf extensions to be recognized case-insensitively")
	}
	if IsPDFFile("resume.docx") {
		t.Error("expected non-pdf extension to be rejected")
	}
	if !HasExtension("photo.PNG", ".png") {
		t.Error("expected HasExtension to compare case-insensitively")
	}
	if HasExtension("photo.png", ".jpg") {
		t.Error("expected mismatched extension to be rejected")
	}
}
