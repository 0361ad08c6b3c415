// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sqlfailover

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sql-bulk-failover/internal/restclient"
)

// wildcard is the "use everything" sentinel accepted for both filter
// arguments.
const wildcard = "*"

// Discoverer turns a (subscription, resource-group filter, server
// filter) request into the enumerated set of failover targets.
type Discoverer struct {
	client *restclient.Client
}

// NewDiscoverer returns a Discoverer that lists resources through client.
func NewDiscoverer(client *restclient.Client) *Discoverer {
	return &Discoverer{client: client}
}

type resourceGroupEntry struct {
	Name string `json:"name"`
}

type serverEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type elasticPoolEntry struct {
	Name string `json:"name"`
}

// Discover enumerates every failover target visible under
// subscriptionID, narrowed by resourceGroupFilter and serverFilter. It
// returns a fatal error if no servers are retained after filtering.
func (d *Discoverer) Discover(ctx context.Context, subscriptionID, resourceGroupFilter, serverFilter string) ([]*Target, error) {
	resourceGroups, err := d.listResourceGroups(ctx, subscriptionID, resourceGroupFilter)
	if err != nil {
		return nil, err
	}

	var servers []*Server
	for _, rg := range resourceGroups {
		rgServers, err := d.listServers(ctx, subscriptionID, rg, serverFilter)
		if err != nil {
			return nil, err
		}
		servers = append(servers, rgServers...)
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf(
			"no logical servers matched resourceGroupFilter=%q serverFilter=%q in subscription %q",
			resourceGroupFilter, serverFilter, subscriptionID,
		)
	}

	var targets []*Target
	for _, server := range servers {
		poolTargets, err := d.listElasticPools(ctx, server)
		if err != nil {
			return nil, err
		}
		targets = append(targets, poolTargets...)

		dbTargets, err := d.listDatabases(ctx, server)
		if err != nil {
			return nil, err
		}
		targets = append(targets, dbTargets...)
	}

	return targets, nil
}

func (d *Discoverer) listResourceGroups(ctx context.Context, subscriptionID, filter string) ([]string, error) {
	if filter != "" && filter != wildcard {
		return []string{filter}, nil
	}

	path := fmt.Sprintf("/subscriptions/%s/resourcegroups?api-version=2021-04-01", subscriptionID)
	items, err := restclient.ListAll(ctx, d.client, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("list resource groups in subscription %s: %w", subscriptionID, err)
	}

	var names []string
	for _, raw := range items {
		var rg resourceGroupEntry
		if err := json.Unmarshal(raw, &rg); err != nil {
			return nil, fmt.Errorf("decode resource group entry: %w", err)
		}
		names = append(names, rg.Name)
	}
	return names, nil
}

func (d *Discoverer) listServers(ctx context.Context, subscriptionID, resourceGroup, serverFilter string) ([]*Server, error) {
	path := fmt.Sprintf(
		"/subscriptions/%s/resourcegroups/%s/providers/Microsoft.Sql/servers?api-version=%s",
		subscriptionID, resourceGroup, APIVersion,
	)
	items, err := restclient.ListAll(ctx, d.client, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("list servers in resource group %s: %w", resourceGroup, err)
	}

	allowed := parseServerFilter(serverFilter)

	var servers []*Server
	for _, raw := range items {
		var entry serverEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode server entry: %w", err)
		}
		if allowed != nil && !allowed[strings.ToLower(entry.Name)] {
			continue
		}
		server, err := ParseServerID(entry.ID)
		if err != nil {
			return nil, fmt.Errorf("parse server id: %w", err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// parseServerFilter interprets the comma-separated server filter. A nil
// return means "no filtering": every server matches.
func parseServerFilter(filter string) map[string]bool {
	if filter == "" || filter == wildcard {
		return nil
	}
	allowed := map[string]bool{}
	for _, name := range strings.Split(filter, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			allowed[name] = true
		}
	}
	return allowed
}

func (d *Discoverer) listElasticPools(ctx context.Context, server *Server) ([]*Target, error) {
	path := fmt.Sprintf(
		"/subscriptions/%s/resourcegroups/%s/providers/Microsoft.Sql/servers/%s/elasticpools?api-version=%s",
		server.SubscriptionID, server.ResourceGroupName, server.Name, APIVersion,
	)
	items, err := restclient.ListAll(ctx, d.client, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("list elastic pools on server %s: %w", server.Name, err)
	}

	var targets []*Target
	for _, raw := range items {
		var entry elasticPoolEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode elastic pool entry: %w", err)
		}
		targets = append(targets, NewElasticPoolTarget(server, entry.Name))
	}
	return targets, nil
}

func (d *Discoverer) listDatabases(ctx context.Context, server *Server) ([]*Target, error) {
	path := fmt.Sprintf(
		"/subscriptions/%s/resourcegroups/%s/providers/Microsoft.Sql/servers/%s/databases?api-version=%s",
		server.SubscriptionID, server.ResourceGroupName, server.Name, APIVersion,
	)
	items, err := restclient.ListAll(ctx, d.client, http.MethodGet, path)
	if err != nil {
		return nil, fmt.Errorf("list databases on server %s: %w", server.Name, err)
	}

	var targets []*Target
	for _, raw := range items {
		var entry databaseListEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode database entry: %w", err)
		}
		if entry.inElasticPool() {
			// Its owning pool is already a target; don't double-count.
			continue
		}
		targets = append(targets, NewDatabaseTarget(server, entry))
	}
	return targets, nil
}
