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

package validation

import (
	"fmt"
	"path"
	"strings"

	"github.com/storeforge/storefront/internal/types"
)

// Severity ranks an issue. Critical and error issues block activation.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
)

// Category groups issues by the rule that raised them
type Category string

const (
	CategoryStructural   Category = "structural"
	CategoryBestPractice Category = "best_practice"
	CategoryTemplate     Category = "template"
	CategorySchema       Category = "schema"
)

// Issue is a single validation finding
type Issue struct {
	Severity Severity `json:"severity"`
	Category Category `json:"type"`
	File     string   `json:"file,omitempty"`
	Message  string   `json:"message"`
}

// Blocking reports whether the issue prevents activation
func (i Issue) Blocking() bool {
	return i.Severity == SeverityCritical || i.Severity == SeverityError
}

// CheckRequiredFiles reports one critical issue per required file that is
// neither present at its exact path nor as a suffix of some path
func CheckRequiredFiles(files []types.ThemeFile, required []string) []Issue {
	var issues []Issue
	for _, want := range required {
		if _, ok := findFile(files, want); !ok {
			issues = append(issues, Issue{
				Severity: SeverityCritical,
				Category: CategoryStructural,
				File:     want,
				Message:  fmt.Sprintf("required file %s is missing", want),
			})
		}
	}
	return issues
}

// CheckFileCount enforces the maximum number of files
func CheckFileCount(files []types.ThemeFile, max int) []Issue {
	if max <= 0 || len(files) <= max {
		return nil
	}
	return []Issue{{
		Severity: SeverityError,
		Category: CategoryStructural,
		Message:  fmt.Sprintf("theme has %d files, maximum is %d", len(files), max),
	}}
}

// CheckTotalSize enforces the maximum combined size in bytes
func CheckTotalSize(files []types.ThemeFile, max int64) []Issue {
	total := TotalSize(files)
	if max <= 0 || total <= max {
		return nil
	}
	return []Issue{{
		Severity: SeverityError,
		Category: CategoryStructural,
		Message: fmt.Sprintf("theme size %.2fMB exceeds maximum of %.2fMB",
			float64(total)/(1024*1024), float64(max)/(1024*1024)),
	}}
}

// CheckFileTypes warns about extensions outside the allow list
func CheckFileTypes(files []types.ThemeFile, allowed []string) []Issue {
	if len(allowed) == 0 {
		return nil
	}
	ok := make(map[string]bool, len(allowed))
	for _, ext := range allowed {
		ok[strings.ToLower(ext)] = true
	}
	var issues []Issue
	for _, f := range files {
		if ext := f.Ext(); !ok[ext] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryBestPractice,
				File:     f.Path,
				Message:  fmt.Sprintf("file type %q is not supported and will be ignored", ext),
			})
		}
	}
	return issues
}

// CheckRootFiles warns about files placed outside a theme folder
func CheckRootFiles(files []types.ThemeFile) []Issue {
	var issues []Issue
	for _, f := range files {
		if !strings.Contains(f.Path, "/") {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Category: CategoryBestPractice,
				File:     f.Path,
				Message:  fmt.Sprintf("%s is at the theme root; move it into a folder such as assets/ or snippets/", f.Path),
			})
		}
	}
	return issues
}

// TotalSize sums file sizes, falling back to content length
func TotalSize(files []types.ThemeFile) int64 {
	var total int64
	for _, f := range files {
		if f.Size > 0 {
			total += f.Size
		} else {
			total += int64(len(f.Content))
		}
	}
	return total
}

// findFile matches a theme path exactly or as a path suffix
func findFile(files []types.ThemeFile, want string) (types.ThemeFile, bool) {
	for _, f := range files {
		if f.Path == want {
			return f, true
		}
	}
	for _, f := range files {
		if strings.HasSuffix(f.Path, "/"+want) {
			return f, true
		}
	}
	return types.ThemeFile{}, false
}

// inDir reports whether a theme path sits directly in dir, ignoring any
// themes-root prefix
func inDir(p, dir string) bool {
	parent := path.Base(path.Dir(p))
	return parent == dir
}
