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

// Package restclient issues authenticated requests against the Azure
// Resource Manager management plane. It performs no retries and no
// response classification beyond returning the raw status, headers and
// body to the caller.
package restclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// ManagementBase is the fixed origin that management-relative paths are
// resolved against, and that absolute URLs (e.g. a returned nextLink or
// Azure-AsyncOperation header) are stripped of before being re-issued.
const ManagementBase = "https://management.azure.com"

// ManagementScope is the OAuth scope requested for tokens used to call
// the management plane.
const ManagementScope = "https://management.azure.com/.default"

// Response is the result of one management-plane request.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// IsSuccess reports whether the response carries a 2xx status code.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client performs authenticated management-plane requests. It attaches a
// bearer token obtained from the configured credential on every call; it
// never retries and never inspects the response body.
type Client struct {
	httpClient *http.Client
	credential azcore.TokenCredential
	base       string
}

// New returns a Client that authenticates with cred, the ambient
// managed identity (or any other azcore.TokenCredential) scoped to the
// subscription the caller intends to operate against.
func New(cred azcore.TokenCredential) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		credential: cred,
		base:       ManagementBase,
	}
}

// NewWithHTTPAndBase returns a Client pointed at a non-default base
// origin with a caller-supplied *http.Client, so tests can substitute an
// httptest server in place of the real management plane.
func NewWithHTTPAndBase(httpClient *http.Client, base string, cred azcore.TokenCredential) *Client {
	return &Client{httpClient: httpClient, credential: cred, base: base}
}

// Do issues method against a management-relative path (one starting with
// "/subscriptions/..."). Absolute URLs must be reduced with
// StripManagementBase before being passed in here.
func (c *Client) Do(ctx context.Context, method, managementRelativePath string) (*Response, error) {
	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{ManagementScope},
	})
	if err != nil {
		return nil, fmt.Errorf("get management token: %w", err)
	}

	url := c.base + managementRelativePath
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s %s: %w", method, managementRelativePath, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s %s: %w", method, managementRelativePath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body for %s %s: %w", method, managementRelativePath, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// StripManagementBase reduces an absolute management-plane URL to its
// management-relative path. URLs that don't carry the management base
// are returned unchanged, since some endpoints already hand back a
// relative path.
func StripManagementBase(raw string) string {
	return strings.TrimPrefix(raw, ManagementBase)
}
