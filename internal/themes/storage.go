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
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/storeforge/storefront/internal/types"
)

var (
	// ErrFileNotFound is returned when a theme file does not exist
	ErrFileNotFound = errors.New("theme file not found")
	// ErrThemeNotFound is returned when a theme directory does not exist
	ErrThemeNotFound = errors.New("theme not found")
)

// Storage is the theme storage collaborator. Paths are slash separated and
// relative to the theme root, e.g. "sections/hero.liquid".
type Storage interface {
	ListFiles(ctx context.Context, themeID string) ([]string, error)
	ReadFile(ctx context.Context, themeID, filePath string) (*types.ThemeFile, error)
}

// CleanPath normalizes a theme-relative path and rejects traversal
func CleanPath(p string) (string, error) {
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid theme path: %q", p)
	}
	return cleaned, nil
}

// LoadAll reads every file of a theme
func LoadAll(ctx context.Context, s Storage, themeID string) ([]types.ThemeFile, error) {
	paths, err := s.ListFiles(ctx, themeID)
	if err != nil {
		return nil, err
	}
	files := make([]types.ThemeFile, 0, len(paths))
	for _, p := range paths {
		f, err := s.ReadFile(ctx, themeID, p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		files = append(files, *f)
	}
	return files, nil
}

// FSStorage serves themes from directories under a root, one per theme ID
type FSStorage struct {
	root string
}

// NewFSStorage creates a filesystem theme storage rooted at dir
func NewFSStorage(dir string) *FSStorage {
	return &FSStorage{root: dir}
}

// Root returns the themes root directory
func (s *FSStorage) Root() string {
	return s.root
}

func (s *FSStorage) themeDir(themeID string) (string, error) {
	if themeID == "" || strings.ContainsAny(themeID, `/\`) || themeID == "." || themeID == ".." {
		return "", fmt.Errorf("invalid theme id: %q", themeID)
	}
	return filepath.Join(s.root, themeID), nil
}

// ListFiles returns the sorted paths of every regular file in a theme
func (s *FSStorage) ListFiles(ctx context.Context, themeID string) ([]string, error) {
	dir, err := s.themeDir(themeID)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", themeID, ErrThemeNotFound)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list theme %s: %w", themeID, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile reads a single theme file
func (s *FSStorage) ReadFile(ctx context.Context, themeID, filePath string) (*types.ThemeFile, error) {
	dir, err := s.themeDir(themeID)
	if err != nil {
		return nil, err
	}
	cleaned, err := CleanPath(filePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(cleaned)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", themeID, cleaned, ErrFileNotFound)
		}
		return nil, err
	}
	return &types.ThemeFile{Path: cleaned, Content: string(data), Size: int64(len(data))}, nil
}

// MemoryStorage keeps theme files in memory
type MemoryStorage struct {
	mu     sync.RWMutex
	themes map[string]map[string]string
}

// NewMemoryStorage creates an empty in-memory theme storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{themes: make(map[string]map[string]string)}
}

// Put stores a file, creating the theme when needed
func (s *MemoryStorage) Put(themeID, filePath, content string) error {
	cleaned, err := CleanPath(filePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	files, ok := s.themes[themeID]
	if !ok {
		files = make(map[string]string)
		s.themes[themeID] = files
	}
	files[cleaned] = content
	return nil
}

// PutAll stores a set of files keyed by path
func (s *MemoryStorage) PutAll(themeID string, files map[string]string) error {
	for p, content := range files {
		if err := s.Put(themeID, p, content); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a file
func (s *MemoryStorage) Delete(themeID, filePath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if files, ok := s.themes[themeID]; ok {
		delete(files, filePath)
	}
}

// ListFiles returns the sorted paths of a theme's files
func (s *MemoryStorage) ListFiles(ctx context.Context, themeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files, ok := s.themes[themeID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", themeID, ErrThemeNotFound)
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile returns a copy of a theme file
func (s *MemoryStorage) ReadFile(ctx context.Context, themeID, filePath string) (*types.ThemeFile, error) {
	cleaned, err := CleanPath(filePath)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.themes[themeID][cleaned]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", themeID, cleaned, ErrFileNotFound)
	}
	return &types.ThemeFile{Path: cleaned, Content: content, Size: int64(len(content))}, nil
}
