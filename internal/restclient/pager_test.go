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

package restclient_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-sql-bulk-failover/internal/restclient"
)

func TestPager_WalksNextLink(t *testing.T) {
	// nextLink is always an absolute https://management.azure.com URL in
	// production; StripManagementBase turns it back into the
	// management-relative path the fake server below is listening on.
	pages := []string{
		fmt.Sprintf(`{"value":[{"name":"a"}],"nextLink":%q}`, restclient.ManagementBase+"/page2"),
		`{"value":[{"name":"b"}]}`,
	}
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := pages[calls]
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, body)
	}))
	defer server.Close()

	client := restclient.NewWithHTTPAndBase(&http.Client{Timeout: 5 * time.Second}, server.URL, stubCredential{token: "tok"})
	pager := restclient.NewPager(client, http.MethodGet, "/page1")

	var names []string
	for item := range pager.Items(context.Background()) {
		var entry struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(item, &entry))
		names = append(names, entry.Name)
	}
	require.NoError(t, pager.Err())
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, 2, calls)
}

func TestPager_AbortsOnNonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = fmt.Fprint(w, `{"error":"boom"}`)
	}))
	defer server.Close()

	client := restclient.NewWithHTTPAndBase(&http.Client{Timeout: 5 * time.Second}, server.URL, stubCredential{token: "tok"})
	items, err := restclient.ListAll(context.Background(), client, http.MethodGet, "/subscriptions/s1/resourcegroups")
	assert.Error(t, err)
	assert.Nil(t, items)
}
