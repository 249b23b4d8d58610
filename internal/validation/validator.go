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

// Package validation gatekeeps theme packages before they can become a
// store's active theme.
package validation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/storeforge/storefront/internal/analysis"
	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/types"
)

// analysisThemeID names the scratch theme used to analyze uploaded files
const analysisThemeID = "validation"

// Report is the outcome of validating a theme package
type Report struct {
	IsValid   bool                       `json:"is_valid"`
	Errors    []Issue                    `json:"errors"`
	Warnings  []Issue                    `json:"warnings"`
	Analysis  *analysis.TemplateAnalysis `json:"analysis,omitempty"`
	Info      *ThemeInfo                 `json:"info,omitempty"`
	FileCount int                        `json:"file_count"`
	TotalSize int64                      `json:"total_size"`
	Duration  time.Duration              `json:"duration"`
}

// Merge splits issues into errors and warnings and recomputes validity.
// A report is valid iff it has no errors, whatever its warnings.
func (r *Report) Merge(issues ...[]Issue) {
	for _, list := range issues {
		for _, issue := range list {
			if issue.Blocking() {
				r.Errors = append(r.Errors, issue)
			} else {
				r.Warnings = append(r.Warnings, issue)
			}
		}
	}
	r.IsValid = len(r.Errors) == 0
}

// Validator runs every theme check
type Validator struct {
	config   config.ValidationConfig
	render   config.RenderConfig
	template *jsonschema.Schema
	logger   *logging.Logger
}

// New creates a validator
func New(cfg config.ValidationConfig, renderCfg config.RenderConfig, logger *logging.Logger) (*Validator, error) {
	schema, err := compileTemplateSchema()
	if err != nil {
		return nil, err
	}
	return &Validator{
		config:   cfg,
		render:   renderCfg,
		template: schema,
		logger:   logger.WithComponent("validation"),
	}, nil
}

// ValidateThemeFiles checks a theme package. The analysis of the index
// template is attached when the package has one.
func (v *Validator) ValidateThemeFiles(ctx context.Context, files []types.ThemeFile, storeID string) *Report {
	start := time.Now()
	report := &Report{
		Errors:    []Issue{},
		Warnings:  []Issue{},
		FileCount: len(files),
		TotalSize: TotalSize(files),
	}

	info, infoIssues := checkThemeInfo(files)
	report.Info = info
	report.Merge(
		CheckRequiredFiles(files, v.config.RequiredFiles),
		CheckFileCount(files, v.config.MaxFiles),
		CheckTotalSize(files, v.config.MaxTotalSize),
		CheckFileTypes(files, v.config.AllowedExtensions),
		CheckRootFiles(files),
		checkJSONTemplates(files, v.template),
		checkSectionSchemas(files),
		infoIssues,
	)

	report.Analysis = v.analyzeIndex(ctx, files, storeID)
	report.Duration = time.Since(start)

	v.logger.WithFields(map[string]interface{}{
		"store_id": storeID,
		"files":    report.FileCount,
		"errors":   len(report.Errors),
		"warnings": len(report.Warnings),
		"valid":    report.IsValid,
	}).Info("Theme validated")
	return report
}

// analyzeIndex runs the template analyzer over the uploaded index template
func (v *Validator) analyzeIndex(ctx context.Context, files []types.ThemeFile, storeID string) *analysis.TemplateAnalysis {
	index, ok := templatePath(files, "index")
	if !ok {
		return nil
	}
	prefix := index.Path[:strings.LastIndex(index.Path, "templates/")]

	storage := themes.NewMemoryStorage()
	for _, f := range files {
		if !strings.HasPrefix(f.Path, prefix) {
			continue
		}
		if err := storage.Put(analysisThemeID, strings.TrimPrefix(f.Path, prefix), f.Content); err != nil {
			v.logger.WithField("path", f.Path).Warnf("Skipping file during analysis: %v", err)
		}
	}

	in := analysis.Input{
		ThemeID:      analysisThemeID,
		PageType:     types.PageHome,
		TemplatePath: strings.TrimPrefix(index.Path, prefix),
		Template:     index.Content,
	}
	if layout, err := storage.ReadFile(ctx, analysisThemeID, "layout/theme.liquid"); err == nil {
		in.LayoutPath = layout.Path
		in.Layout = layout.Content
	}

	result := analysis.New(storage, v.render, v.logger).Analyze(ctx, storeID, in)
	if result.Err != nil {
		v.logger.Warnf("Index template analysis degraded: %v", result.Err)
	}
	return result.Value
}

// ValidateDirectory loads a theme from storage and validates it
func (v *Validator) ValidateDirectory(ctx context.Context, storage themes.Storage, themeID, storeID string) (*Report, error) {
	files, err := themes.LoadAll(ctx, storage, themeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load theme %s: %w", themeID, err)
	}
	return v.ValidateThemeFiles(ctx, files, storeID), nil
}
