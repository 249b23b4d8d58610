/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package themes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/storeforge/storefront/internal/logging"
)

func writeTheme(t *testing.T, root, themeID string, files map[string]string) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(root, themeID, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"sections/hero.liquid", "sections/hero.liquid", false},
		{"/layout/theme.liquid", "layout/theme.liquid", false},
		{"sections/../layout/theme.liquid", "layout/theme.liquid", false},
		{"../secrets", "", true},
		{"", "", true},
		{"..", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanPath(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanPath(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CleanPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFSStorage(t *testing.T) {
	root := t.TempDir()
	writeTheme(t, root, "dawn", map[string]string{
		"layout/theme.liquid":  "<html>{{ content_for_layout }}</html>",
		"sections/hero.liquid": "<h1>hero</h1>",
		"templates/index.json": `{"sections":{},"order":[]}`,
		".git/HEAD":            "ref",
	})

	s := NewFSStorage(root)
	ctx := context.Background()

	paths, err := s.ListFiles(ctx, "dawn")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	want := []string{"layout/theme.liquid", "sections/hero.liquid", "templates/index.json"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("ListFiles = %v, want %v", paths, want)
	}

	f, err := s.ReadFile(ctx, "dawn", "sections/hero.liquid")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if f.Content != "<h1>hero</h1>" || f.Size != 13 || f.Ext() != ".liquid" {
		t.Errorf("Unexpected file %+v", f)
	}

	if _, err := s.ReadFile(ctx, "dawn", "sections/missing.liquid"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}
	if _, err := s.ListFiles(ctx, "missing"); !errors.Is(err, ErrThemeNotFound) {
		t.Errorf("Expected ErrThemeNotFound, got %v", err)
	}
	if _, err := s.ReadFile(ctx, "../etc", "passwd"); err == nil {
		t.Error("Expected invalid theme id error")
	}

	files, err := LoadAll(ctx, s, "dawn")
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("Expected 3 files, got %d", len(files))
	}
}

func TestMemoryStorage(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	if err := s.PutAll("dawn", map[string]string{
		"sections/footer.liquid": "footer",
		"/layout/theme.liquid":   "layout",
	}); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	paths, err := s.ListFiles(ctx, "dawn")
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if !reflect.DeepEqual(paths, []string{"layout/theme.liquid", "sections/footer.liquid"}) {
		t.Errorf("Unexpected paths %v", paths)
	}

	f, err := s.ReadFile(ctx, "dawn", "layout/theme.liquid")
	if err != nil || f.Content != "layout" {
		t.Errorf("Unexpected file %+v err=%v", f, err)
	}

	s.Delete("dawn", "layout/theme.liquid")
	if _, err := s.ReadFile(ctx, "dawn", "layout/theme.liquid"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound after delete, got %v", err)
	}
	if _, err := s.ListFiles(ctx, "other"); !errors.Is(err, ErrThemeNotFound) {
		t.Errorf("Expected ErrThemeNotFound, got %v", err)
	}
	if err := s.Put("dawn", "../escape", "x"); err == nil {
		t.Error("Expected traversal to be rejected")
	}
}

func TestWatcher_Split(t *testing.T) {
	w := &Watcher{root: filepath.Clean("/themes")}
	tests := []struct {
		name      string
		wantTheme string
		wantPath  string
		wantOK    bool
	}{
		{"/themes/dawn/sections/hero.liquid", "dawn", "sections/hero.liquid", true},
		{"/themes/dawn", "dawn", "", true},
		{"/themes", "", "", false},
		{"/other/file", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theme, p, ok := w.split(filepath.FromSlash(tt.name))
			if theme != tt.wantTheme || p != tt.wantPath || ok != tt.wantOK {
				t.Errorf("split(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.name, theme, p, ok, tt.wantTheme, tt.wantPath, tt.wantOK)
			}
		})
	}
}

func TestWatcher_ReportsWrites(t *testing.T) {
	root := t.TempDir()
	writeTheme(t, root, "dawn", map[string]string{"sections/hero.liquid": "v1"})

	changes := make(chan string, 10)
	w, err := NewWatcher(root, 0, func(themeID, filePath string) {
		changes <- themeID + ":" + filePath
	}, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(root, "dawn", "sections", "hero.liquid"), []byte("v2"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-changes:
		if got != "dawn:sections/hero.liquid" {
			t.Errorf("Unexpected change %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for change notification")
	}
}
