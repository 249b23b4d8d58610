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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/storeforge/storefront/internal/analysis"
	"github.com/storeforge/storefront/internal/cache"
	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/engine"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/resolver"
	"github.com/storeforge/storefront/internal/storage"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/validation"
)

// errInvalidTheme makes the command exit non-zero after printing its report
var errInvalidTheme = errors.New("theme is invalid")

func newThemeCmd(opts *options) *cobra.Command {
	themeCmd := &cobra.Command{
		Use:   "theme",
		Short: "Validate and analyze theme packages",
	}

	var remote bool
	var storeID string
	validateCmd := &cobra.Command{
		Use:   "validate <dir|theme-id>",
		Short: "Validate a theme package",
		Long: `Validate a theme directory against the package rules: required files,
file count and size limits, allowed file types, JSON template structure and
section schemas. With --remote the argument is a theme id validated by the
server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var report validation.Report
			if remote {
				status, err := opts.client().do("POST", "/admin/themes/"+url.PathEscape(args[0])+"/validate",
					url.Values{"store_id": {storeID}}, &report, 422)
				if err != nil {
					return err
				}
				report.IsValid = report.IsValid && status != 422
			} else {
				local, err := validateLocal(cmd.Context(), opts, args[0], storeID)
				if err != nil {
					return err
				}
				report = *local
			}

			if err := printReport(cmd.OutOrStdout(), opts.format, args[0], &report); err != nil {
				return err
			}
			if !report.IsValid {
				return errInvalidTheme
			}
			return nil
		},
	}
	validateCmd.Flags().BoolVar(&remote, "remote", false, "validate a theme stored on the server")
	validateCmd.Flags().StringVar(&storeID, "store-id", "", "store whose persisted settings feed the index analysis")

	var template string
	var analyzeRemote bool
	var analyzeStore string
	analyzeCmd := &cobra.Command{
		Use:   "analyze <dir|theme-id>",
		Short: "Report the data a template needs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result *analysis.TemplateAnalysis
			if analyzeRemote {
				var resp struct {
					Analysis *analysis.TemplateAnalysis `json:"analysis"`
					Issues   []string                   `json:"issues"`
				}
				query := url.Values{"template": {template}, "store_id": {analyzeStore}}
				if _, err := opts.client().do("GET", "/admin/themes/"+url.PathEscape(args[0])+"/analyze", query, &resp); err != nil {
					return err
				}
				result = resp.Analysis
			} else {
				local, err := analyzeLocal(cmd.Context(), opts, args[0], template)
				if err != nil {
					return err
				}
				result = local
			}
			return printAnalysis(cmd.OutOrStdout(), opts.format, template, result)
		},
	}
	analyzeCmd.Flags().StringVarP(&template, "template", "t", "index", "template name, e.g. product or collection")
	analyzeCmd.Flags().BoolVar(&analyzeRemote, "remote", false, "analyze a theme stored on the server")
	analyzeCmd.Flags().StringVar(&analyzeStore, "store-id", "", "store whose persisted settings apply (remote only)")

	themeCmd.AddCommand(validateCmd, analyzeCmd)
	return themeCmd
}

// splitThemeDir maps a theme directory to its storage root and theme id
func splitThemeDir(dir string) (string, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", "", fmt.Errorf("invalid theme directory %s: %w", dir, err)
	}
	return filepath.Dir(abs), filepath.Base(abs), nil
}

func validateLocal(ctx context.Context, opts *options, dir, storeID string) (*validation.Report, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	root, themeID, err := splitThemeDir(dir)
	if err != nil {
		return nil, err
	}

	validator, err := validation.New(cfg.Validation, cfg.Render, cliLogger(opts))
	if err != nil {
		return nil, err
	}
	return validator.ValidateDirectory(ctx, themes.NewFSStorage(root), themeID, storeID)
}

// analyzeLocal runs the render engine's analysis over a theme directory
// without any store data
func analyzeLocal(ctx context.Context, opts *options, dir, template string) (*analysis.TemplateAnalysis, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	root, themeID, err := splitThemeDir(dir)
	if err != nil {
		return nil, err
	}
	logger := cliLogger(opts)

	store := storage.NewMemoryStorage()
	c := cache.NewMemoryCache(cache.MemoryConfig{DefaultTTL: time.Minute, MaxSize: 16, CleanupInterval: -1})
	defer c.Stop()
	res, err := resolver.New(store, c, cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(cfg, engine.Dependencies{
		Resolver: res,
		Storage:  store,
		Themes:   themes.NewFSStorage(root),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	result := eng.Analyze(ctx, themeID, "", template)
	if result.Terminal() {
		return nil, result.Err
	}
	if result.Err != nil && opts.verbose {
		logger.Warnf("Analysis degraded: %v", result.Err)
	}
	return result.Value, nil
}

func cliLogger(opts *options) *logging.Logger {
	if opts.verbose {
		return logging.NewLoggerWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, os.Stderr)
	}
	return logging.NewNopLogger()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, format, name string, report *validation.Report) error {
	if format == "json" {
		return writeJSON(w, report)
	}

	status := "VALID"
	if !report.IsValid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "Theme %s: %s (%d files, %.1f KB, %s)\n",
		name, status, report.FileCount, float64(report.TotalSize)/1024, report.Duration.Round(time.Millisecond))
	if report.Info != nil {
		fmt.Fprintf(w, "  %s %s by %s\n", report.Info.Name, report.Info.Version, report.Info.Author)
	}

	for _, section := range []struct {
		title  string
		issues []validation.Issue
	}{
		{"Errors", report.Errors},
		{"Warnings", report.Warnings},
	} {
		if len(section.issues) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", section.title)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, issue := range section.issues {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", issue.Severity, issue.Category, issue.File, issue.Message)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if report.Analysis != nil {
		fmt.Fprintln(w)
		return printAnalysis(w, format, "index", report.Analysis)
	}
	return nil
}

func printAnalysis(w io.Writer, format, template string, a *analysis.TemplateAnalysis) error {
	if format == "json" {
		return writeJSON(w, a)
	}
	if a == nil || (len(a.Requirements) == 0 && len(a.Sections) == 0) {
		fmt.Fprintf(w, "Template %s needs no store data\n", template)
		return nil
	}

	fmt.Fprintf(w, "Template %s requires:\n", template)
	requirements := make([]string, 0, len(a.Requirements))
	for r := range a.Requirements {
		requirements = append(requirements, string(r))
	}
	sort.Strings(requirements)
	for _, r := range requirements {
		fmt.Fprintf(w, "  %s (limit %d)\n", r, a.Limit(analysis.Requirement(r)))
	}
	if a.UsesPagination {
		fmt.Fprintln(w, "  pagination")
	}
	if len(a.Sections) > 0 {
		fmt.Fprintf(w, "Sections: %s\n", strings.Join(a.Sections, ", "))
	}
	return nil
}
