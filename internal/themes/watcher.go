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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/storeforge/storefront/internal/logging"
)

// ChangeHandler is called with the theme ID and theme-relative path of a
// changed file
type ChangeHandler func(themeID, filePath string)

// Watcher reports file changes below a themes root
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	handler  ChangeHandler
	logger   *logging.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]string
	timer   *time.Timer
}

// NewWatcher watches root and every directory below it
func NewWatcher(root string, debounce time.Duration, handler ChangeHandler, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		watcher:  fw,
		handler:  handler,
		logger:   logger.WithComponent("themes"),
		debounce: debounce,
		pending:  make(map[string]string),
	}
	if err := w.addRecursive(w.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.watcher.Add(p)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Theme watcher error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Error("Failed to watch new theme directory", err)
			}
		}
	}
	if event.Op == fsnotify.Chmod {
		return
	}

	themeID, rel, ok := w.split(event.Name)
	if !ok {
		return
	}
	if w.debounce <= 0 {
		w.handler(themeID, rel)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[themeID+"\x00"+rel] = themeID
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]string)
	w.mu.Unlock()

	for key, themeID := range pending {
		w.handler(themeID, strings.TrimPrefix(key, themeID+"\x00"))
	}
}

// split maps an absolute event path to a theme ID and theme-relative path
func (w *Watcher) split(name string) (string, string, bool) {
	rel, err := filepath.Rel(w.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) == 1 {
		return parts[0], "", true
	}
	return parts[0], parts[1], true
}

// Close stops the watcher
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
