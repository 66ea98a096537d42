// internal/security/paths_test.go
package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "site")

	tests := []struct {
		rel     string
		want    string
		wantErr bool
	}{
		{rel: "index.html", want: filepath.Join(root, "index.html")},
		{rel: "blog/post/index.html", want: filepath.Join(root, "blog", "post", "index.html")},
		{rel: "blog/../about.html", want: filepath.Join(root, "about.html")},
		{rel: ".", want: root},
		{rel: "../etc/passwd", wantErr: true},
		{rel: "blog/../../x", wantErr: true},
		{rel: "/etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Within(root, tt.rel)
		if tt.wantErr {
			if !errors.Is(err, ErrOutsideRoot) {
				t.Errorf("Within(%q) error = %v, want ErrOutsideRoot", tt.rel, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Within(%q) unexpected error: %v", tt.rel, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Within(%q) = %q, want %q", tt.rel, got, tt.want)
		}
	}
}

func TestCheckNotWorldWritable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitegen.yaml")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CheckNotWorldWritable(path); err != nil {
		t.Errorf("expected 0644 to pass, got %v", err)
	}

	if err := os.Chmod(path, 0666); err != nil {
		t.Fatal(err)
	}
	if err := CheckNotWorldWritable(path); err == nil {
		t.Error("expected error for world-writable file")
	}

	if err := CheckNotWorldWritable(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
