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

// Package dnscheck inspects the DNS of custom domains: whether they route to
// the storefront edge and which store their TXT record claims.
package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/storeforge/storefront/internal/cache"
	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/types"
)

// RecordPrefix is the label holding a domain's ownership TXT record
const RecordPrefix = "_storefront."

// Lookuper is the subset of net.Resolver used by the checker
type Lookuper interface {
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Result is the DNS state of one custom domain
type Result struct {
	Domain         string    `json:"domain"`
	EdgeTarget     string    `json:"edge_target"`
	CNAME          string    `json:"cname,omitempty"`
	PointsToEdge   bool      `json:"points_to_edge"`
	ClaimedStoreID string    `json:"claimed_store_id,omitempty"`
	Problems       []string  `json:"problems,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Verified reports whether the domain routes to the edge and its TXT record
// claims storeID
func (r *Result) Verified(storeID string) bool {
	return r != nil && storeID != "" && r.PointsToEdge && r.ClaimedStoreID == storeID
}

// Checker runs and caches DNS checks
type Checker struct {
	lookup  Lookuper
	cache   cache.Cache
	edge    string
	timeout time.Duration
	ttl     time.Duration
	logger  *logging.Logger
}

// NewResolver returns a resolver dialing the first of servers, or the
// system resolver when servers is empty
func NewResolver(servers []string, timeout time.Duration) *net.Resolver {
	if len(servers) == 0 {
		return net.DefaultResolver
	}
	server := servers[0]
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, network, server)
		},
	}
}

// New creates a checker. A nil lookup uses NewResolver over the configured
// servers; a nil cache disables caching.
func New(cfg config.DNSConfig, platformDomain string, lookup Lookuper, c cache.Cache, logger *logging.Logger) (*Checker, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	edge := types.NormalizeDomain(cfg.EdgeTarget)
	if edge == "" {
		if platformDomain == "" {
			return nil, fmt.Errorf("edge target or platform domain is required")
		}
		edge = "stores." + types.NormalizeDomain(platformDomain)
	}
	if lookup == nil {
		lookup = NewResolver(cfg.Resolvers, cfg.Timeout)
	}

	return &Checker{
		lookup:  lookup,
		cache:   c,
		edge:    edge,
		timeout: cfg.Timeout,
		ttl:     cfg.CacheTTL,
		logger:  logger.WithComponent("dnscheck"),
	}, nil
}

// EdgeTarget returns the host custom domains must CNAME to
func (c *Checker) EdgeTarget() string {
	return c.edge
}

// Check reports the DNS state of a domain. Missing records are reported as
// problems on the result; lookup failures are returned as errors and never
// cached.
func (c *Checker) Check(ctx context.Context, domain string) (*Result, error) {
	domain = types.NormalizeDomain(domain)
	if domain == "" {
		return nil, fmt.Errorf("domain is required")
	}

	key := cache.Key(cache.NamespaceDNS, domain)
	if c.cache != nil {
		var cached Result
		if ok, err := c.cache.Get(ctx, key, &cached); err == nil && ok {
			return &cached, nil
		} else if err != nil {
			c.logger.WithField("domain", domain).Warnf("DNS cache read failed: %v", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result := &Result{Domain: domain, EdgeTarget: c.edge, CheckedAt: time.Now().UTC()}

	cname, err := c.lookup.LookupCNAME(ctx, domain)
	switch {
	case isNotFound(err):
		result.Problems = append(result.Problems, fmt.Sprintf("%s does not resolve", domain))
	case err != nil:
		return nil, fmt.Errorf("CNAME lookup for %s failed: %w", domain, err)
	default:
		// the resolver answers with the queried name when no CNAME exists
		if target := types.NormalizeDomain(cname); target != domain {
			result.CNAME = target
		}
		result.PointsToEdge = result.CNAME == c.edge
		if !result.PointsToEdge {
			result.Problems = append(result.Problems, fmt.Sprintf("%s must be a CNAME to %s", domain, c.edge))
		}
	}

	records, err := c.lookup.LookupTXT(ctx, RecordPrefix+domain)
	switch {
	case isNotFound(err):
		result.Problems = append(result.Problems, fmt.Sprintf("no TXT record at %s%s", RecordPrefix, domain))
	case err != nil:
		return nil, fmt.Errorf("TXT lookup for %s%s failed: %w", RecordPrefix, domain, err)
	default:
		for _, record := range records {
			if storeID, ok := ParseRecord(record); ok {
				result.ClaimedStoreID = storeID
				break
			}
		}
		if result.ClaimedStoreID == "" {
			result.Problems = append(result.Problems, fmt.Sprintf("TXT record at %s%s has no store claim", RecordPrefix, domain))
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"domain":         domain,
		"points_to_edge": result.PointsToEdge,
		"claimed_store":  result.ClaimedStoreID,
		"problems":       len(result.Problems),
	}).Debug("Checked domain DNS")

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, result, c.ttl); err != nil {
			c.logger.WithField("domain", domain).Warnf("DNS cache write failed: %v", err)
		}
	}
	return result, nil
}

// Invalidate drops a cached check
func (c *Checker) Invalidate(ctx context.Context, domain string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(ctx, cache.Key(cache.NamespaceDNS, types.NormalizeDomain(domain)))
}

// ParseRecord extracts the store id from a TXT record of the form
// "v=sf1;store=<id>"
func ParseRecord(record string) (string, bool) {
	if !strings.HasPrefix(record, "v=sf") {
		return "", false
	}

	var version, storeID string
	for _, part := range strings.Split(record, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.TrimSpace(kv[0]) {
		case "v":
			version = strings.TrimSpace(kv[1])
		case "store":
			storeID = strings.TrimSpace(kv[1])
		}
	}

	if version != "sf1" || storeID == "" {
		return "", false
	}
	return storeID, true
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
