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

package sqlfailover_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-sql-bulk-failover/internal/restclient"
	"github.com/Azure/azure-sql-bulk-failover/internal/sqlfailover"
)

// scriptedServer replies to each known path with a queue of canned bodies,
// popping one per request and repeating the last once the queue drains.
// This lets a test express "first poll says InProgress, second says
// Succeeded" without a stateful fake.
type scriptedServer struct {
	mu    sync.Mutex
	pages map[string][]scriptedResponse
}

type scriptedResponse struct {
	status  int
	body    string
	headers map[string]string
}

func newScriptedServer() *scriptedServer {
	return &scriptedServer{pages: map[string][]scriptedResponse{}}
}

func (s *scriptedServer) on(path string, responses ...scriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = responses
}

func (s *scriptedServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		queue := s.pages[r.URL.Path]
		var next scriptedResponse
		if len(queue) == 0 {
			next = scriptedResponse{status: http.StatusNotFound, body: `{"error":"no script"}`}
		} else {
			next = queue[0]
			if len(queue) > 1 {
				s.pages[r.URL.Path] = queue[1:]
			}
		}
		s.mu.Unlock()

		for k, v := range next.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(next.status)
		_, _ = fmt.Fprint(w, next.body)
	}
}

func TestOrchestrator_SingleDatabaseSuccess(t *testing.T) {
	script := newScriptedServer()
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers",
		scriptedResponse{status: http.StatusOK, body: `{"value":[{"id":"/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1","name":"srv1"}]}`})
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/elasticpools",
		scriptedResponse{status: http.StatusOK, body: `{"value":[]}`})
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases",
		scriptedResponse{status: http.StatusOK, body: `{"value":[{"id":"/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases/db1","name":"db1","properties":{"currentSku":{"tier":"GeneralPurpose"},"status":"Online"}}]}`})

	server := httptest.NewServer(script.handler())
	defer server.Close()

	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases/db1/failover",
		scriptedResponse{
			status:  http.StatusAccepted,
			headers: map[string]string{"Azure-AsyncOperation": restclient.ManagementBase + "/subscriptions/s1/operations/op1"},
		})
	script.on("/subscriptions/s1/operations/op1",
		scriptedResponse{status: http.StatusOK, body: `{"status":"InProgress"}`},
		scriptedResponse{status: http.StatusOK, body: `{"status":"Succeeded"}`},
	)

	client := restclient.NewWithHTTPAndBase(&http.Client{Timeout: 5 * time.Second}, server.URL, stubCredential{})
	orchestrator := sqlfailover.NewOrchestrator(
		sqlfailover.NewDiscoverer(client),
		sqlfailover.NewTracker(client),
		nil,
		time.Millisecond,
		sqlfailover.NewMetrics(prometheus.NewRegistry()),
		logr.Discard(),
	)

	summary, err := orchestrator.Run(context.Background(), "s1", "rg1", "srv1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, summary.RetryGuidance)
}

func TestOrchestrator_HyperscaleSkip(t *testing.T) {
	script := newScriptedServer()
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers",
		scriptedResponse{status: http.StatusOK, body: `{"value":[{"id":"/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1","name":"srv1"}]}`})
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/elasticpools",
		scriptedResponse{status: http.StatusOK, body: `{"value":[]}`})
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases",
		scriptedResponse{status: http.StatusOK, body: `{"value":[{"id":"/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases/db1","name":"db1","properties":{"currentSku":{"tier":"Hyperscale"},"status":"Online"}}]}`})

	server := httptest.NewServer(script.handler())
	defer server.Close()

	client := restclient.NewWithHTTPAndBase(&http.Client{Timeout: 5 * time.Second}, server.URL, stubCredential{})
	orchestrator := sqlfailover.NewOrchestrator(
		sqlfailover.NewDiscoverer(client),
		sqlfailover.NewTracker(client),
		nil,
		time.Millisecond,
		sqlfailover.NewMetrics(prometheus.NewRegistry()),
		logr.Discard(),
	)

	summary, err := orchestrator.Run(context.Background(), "s1", "rg1", "srv1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
}

func TestOrchestrator_InitiateRejected(t *testing.T) {
	script := newScriptedServer()
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers",
		scriptedResponse{status: http.StatusOK, body: `{"value":[{"id":"/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1","name":"srv1"}]}`})
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/elasticpools",
		scriptedResponse{status: http.StatusOK, body: `{"value":[]}`})
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases",
		scriptedResponse{status: http.StatusOK, body: `{"value":[{"id":"/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases/db1","name":"db1","properties":{"currentSku":{"tier":"GeneralPurpose"},"status":"Online"}}]}`})
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers/srv1/databases/db1/failover",
		scriptedResponse{status: http.StatusBadRequest, body: `{"error":{"code":"InvalidRequest"}}`})

	server := httptest.NewServer(script.handler())
	defer server.Close()

	client := restclient.NewWithHTTPAndBase(&http.Client{Timeout: 5 * time.Second}, server.URL, stubCredential{})
	orchestrator := sqlfailover.NewOrchestrator(
		sqlfailover.NewDiscoverer(client),
		sqlfailover.NewTracker(client),
		nil,
		time.Millisecond,
		sqlfailover.NewMetrics(prometheus.NewRegistry()),
		logr.Discard(),
	)

	summary, err := orchestrator.Run(context.Background(), "s1", "rg1", "srv1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.NotEmpty(t, summary.RetryGuidance)
}

func TestOrchestrator_EmptyFilterIsFatal(t *testing.T) {
	script := newScriptedServer()
	script.on("/subscriptions/s1/resourcegroups/rg1/providers/Microsoft.Sql/servers",
		scriptedResponse{status: http.StatusOK, body: `{"value":[]}`})

	server := httptest.NewServer(script.handler())
	defer server.Close()

	client := restclient.NewWithHTTPAndBase(&http.Client{Timeout: 5 * time.Second}, server.URL, stubCredential{})
	orchestrator := sqlfailover.NewOrchestrator(
		sqlfailover.NewDiscoverer(client),
		sqlfailover.NewTracker(client),
		nil,
		time.Millisecond,
		sqlfailover.NewMetrics(prometheus.NewRegistry()),
		logr.Discard(),
	)

	_, err := orchestrator.Run(context.Background(), "s1", "rg1", "srv1")
	assert.Error(t, err)
}

type rejectingPreFlight struct{ err error }

func (r rejectingPreFlight) Check(context.Context, string) error { return r.err }

func TestOrchestrator_PreFlightFailureAbortsBeforeDiscovery(t *testing.T) {
	client := restclient.NewWithHTTPAndBase(&http.Client{Timeout: 5 * time.Second}, "http://unused.invalid", stubCredential{})
	orchestrator := sqlfailover.NewOrchestrator(
		sqlfailover.NewDiscoverer(client),
		sqlfailover.NewTracker(client),
		rejectingPreFlight{err: fmt.Errorf("no active notification")},
		time.Millisecond,
		sqlfailover.NewMetrics(prometheus.NewRegistry()),
		logr.Discard(),
	)

	_, err := orchestrator.Run(context.Background(), "s1", "rg1", "srv1")
	assert.Error(t, err)
}
