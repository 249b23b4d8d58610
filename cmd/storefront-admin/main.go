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

// Command storefront-admin validates and analyzes themes locally and drives
// the admin API of a running storefront server.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storeforge/storefront/internal/config"
)

type options struct {
	gatewayURL     string
	adminKey       string
	adminKeyHeader string
	configFile     string
	format         string
	verbose        bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "storefront-admin",
		Short: "Administer storefront themes and domains",
		Long: `storefront-admin validates and analyzes theme packages and talks to the
admin API of a running storefront server.

Examples:
  storefront-admin theme validate ./themes/dawn
  storefront-admin theme analyze ./themes/dawn --template collection
  storefront-admin theme validate dawn --remote
  storefront-admin domain resolve shop.example.com
  storefront-admin domain invalidate shop.example.com
  storefront-admin domain check shop.example.com
  storefront-admin health`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.gatewayURL, "gateway", envOr("STOREFRONT_GATEWAY", "http://localhost:8080"), "storefront server URL")
	flags.StringVar(&opts.adminKey, "admin-key", os.Getenv("STOREFRONT_ADMIN_KEY"), "admin API key")
	flags.StringVar(&opts.adminKeyHeader, "admin-key-header", "X-Admin-Key", "header carrying the admin API key")
	flags.StringVar(&opts.configFile, "config", "", "server configuration file used for local commands")
	flags.StringVarP(&opts.format, "format", "f", "text", "output format (text, json)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newThemeCmd(opts), newDomainCmd(opts), newHealthCmd(opts))
	return rootCmd
}

func (o *options) loadConfig() (*config.Config, error) {
	if o.configFile == "" {
		return config.Default(), nil
	}
	return config.LoadFrom(o.configFile, "")
}

func (o *options) client() *adminClient {
	return newAdminClient(strings.TrimRight(o.gatewayURL, "/"), o.adminKeyHeader, o.adminKey, o.verbose)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
