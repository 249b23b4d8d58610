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
	"fmt"
	"net/url"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/storeforge/storefront/internal/dnscheck"
	"github.com/storeforge/storefront/internal/resolver"
	"github.com/storeforge/storefront/internal/server"
)

// domainResolution is the admin API view of a resolved domain
type domainResolution struct {
	Resolution  *resolver.Resolution `json:"resolution"`
	PositiveTTL string               `json:"positive_ttl"`
	NegativeTTL string               `json:"negative_ttl"`
}

func newDomainCmd(opts *options) *cobra.Command {
	domainCmd := &cobra.Command{
		Use:   "domain",
		Short: "Inspect domain resolution on a running server",
	}

	resolveCmd := &cobra.Command{
		Use:   "resolve <domain>",
		Short: "Show which store a domain resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp domainResolution
			if _, err := opts.client().do("GET", "/admin/domains/"+url.PathEscape(args[0]), nil, &resp); err != nil {
				return err
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			res := resp.Resolution
			if res == nil {
				res = &resolver.Resolution{Domain: args[0], Source: resolver.SourceNone}
			}
			fmt.Fprintf(w, "Domain:\t%s\n", res.Domain)
			fmt.Fprintf(w, "Source:\t%s\n", res.Source)
			fmt.Fprintf(w, "Cached:\t%t\n", res.CacheHit)
			if res.Store != nil {
				fmt.Fprintf(w, "Store:\t%s (%s)\n", res.Store.Name, res.Store.ID)
				fmt.Fprintf(w, "Active:\t%t\n", res.Store.IsActive)
				if res.Store.ThemeID != "" {
					fmt.Fprintf(w, "Theme:\t%s\n", res.Store.ThemeID)
				}
			} else {
				fmt.Fprintf(w, "Store:\tnone\n")
			}
			fmt.Fprintf(w, "TTL:\t%s positive, %s negative\n", resp.PositiveTTL, resp.NegativeTTL)
			return w.Flush()
		},
	}

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <domain>",
		Short: "Drop the cached resolution of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Domain      string `json:"domain"`
				Invalidated bool   `json:"invalidated"`
			}
			if _, err := opts.client().do("POST", "/admin/domains/"+url.PathEscape(args[0])+"/invalidate", nil, &resp); err != nil {
				return err
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated cached resolution for %s\n", resp.Domain)
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check <domain>",
		Short: "Check that a custom domain's DNS routes to its store",
		Long: `Check that a custom domain is a CNAME to the storefront edge and that its
_storefront TXT record ("v=sf1;store=<id>") claims the store the domain
resolves to.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				DNS      dnscheck.Result `json:"dns"`
				StoreID  string          `json:"store_id"`
				Verified bool            `json:"verified"`
			}
			if _, err := opts.client().do("GET", "/admin/domains/"+url.PathEscape(args[0])+"/dns", nil, &resp); err != nil {
				return err
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Domain:\t%s\n", resp.DNS.Domain)
			fmt.Fprintf(w, "CNAME:\t%s (edge %s)\n", orNone(resp.DNS.CNAME), resp.DNS.EdgeTarget)
			fmt.Fprintf(w, "Claimed by:\t%s\n", orNone(resp.DNS.ClaimedStoreID))
			fmt.Fprintf(w, "Resolves to:\t%s\n", orNone(resp.StoreID))
			fmt.Fprintf(w, "Verified:\t%t\n", resp.Verified)
			for _, problem := range resp.DNS.Problems {
				fmt.Fprintf(w, "  - %s\n", problem)
			}
			return w.Flush()
		},
	}

	domainCmd.AddCommand(resolveCmd, invalidateCmd, checkCmd)
	return domainCmd
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the health of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var health server.HealthStatus
			// 503 still carries the component breakdown
			if _, err := opts.client().do("GET", "/health", nil, &health, 503); err != nil {
				return err
			}
			if opts.format == "json" {
				if err := writeJSON(cmd.OutOrStdout(), health); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Status: %s (version %s)\n", health.Status, health.Version)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				names := make([]string, 0, len(health.Components))
				for name := range health.Components {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Fprintf(w, "  %s\t%s\n", name, health.Components[name])
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			if !health.Healthy {
				return fmt.Errorf("server is %s", health.Status)
			}
			return nil
		},
	}
}
