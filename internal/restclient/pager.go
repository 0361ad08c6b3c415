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

package restclient

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
)

// page is the envelope every list endpoint in this API family responds
// with: a value array and an optional absolute nextLink.
type page struct {
	Value    []json.RawMessage `json:"value"`
	NextLink *string           `json:"nextLink"`
}

// Pager walks a paginated list endpoint, re-issuing the same method
// against each nextLink until the management plane stops returning one.
// A non-2xx response on any page aborts the listing; Pager performs no
// transport-level retry.
type Pager struct {
	client *Client
	method string
	path   string

	err error
}

// NewPager returns a Pager that starts at the given management-relative
// list path.
func NewPager(client *Client, method, initialPath string) *Pager {
	return &Pager{client: client, method: method, path: initialPath}
}

// Items yields every item across all pages in order. Iteration stops
// early on a fatal error; inspect Err after the range completes to find
// out whether it ran to completion.
func (p *Pager) Items(ctx context.Context) iter.Seq[json.RawMessage] {
	return func(yield func(json.RawMessage) bool) {
		path := p.path
		for {
			resp, err := p.client.Do(ctx, p.method, path)
			if err != nil {
				p.err = fmt.Errorf("list %s: %w", path, err)
				return
			}
			if !resp.IsSuccess() {
				p.err = fmt.Errorf("list %s: unexpected status %d: %s", path, resp.StatusCode, string(resp.Body))
				return
			}

			var pg page
			if err := json.Unmarshal(resp.Body, &pg); err != nil {
				p.err = fmt.Errorf("list %s: decode page: %w", path, err)
				return
			}

			for _, item := range pg.Value {
				if !yield(item) {
					return
				}
			}

			if pg.NextLink == nil || *pg.NextLink == "" {
				return
			}
			path = StripManagementBase(*pg.NextLink)
		}
	}
}

// Err returns the fatal error, if any, encountered while paging. It must
// be checked after Items has been fully ranged over.
func (p *Pager) Err() error {
	return p.err
}

// ListAll drains a Pager into a slice, a convenience for call sites that
// don't need to process items as they stream in.
func ListAll(ctx context.Context, client *Client, method, initialPath string) ([]json.RawMessage, error) {
	pager := NewPager(client, method, initialPath)
	var items []json.RawMessage
	for item := range pager.Items(ctx) {
		items = append(items, item)
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
