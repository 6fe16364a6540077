package essink_test

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/essink"
)

type bulkDoc struct {
	Action string
	Index  string
	Doc    map[string]any
}

// esMock is a minimal Elasticsearch: product check, bulk and ingest pipeline endpoints.
// docStatus decides the bulk status of every document attempt, 201 when nil.
type esMock struct {
	t          *testing.T
	docStatus  func(doc map[string]any, attempt int) int
	pipeStatus []int

	mu        sync.Mutex
	docs      []bulkDoc
	attempts  map[string]int
	pipelines map[string]string
	pipeCalls int
}

func newESMock(t *testing.T) *esMock {
	t.Helper()

	return &esMock{t: t, attempts: map[string]int{}, pipelines: map[string]string{}}
}

func (m *esMock) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		_, _ = w.Write([]byte(`{"name":"mock","cluster_name":"mock","version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`))
	case r.Method == http.MethodPost && r.URL.Path == "/_bulk":
		m.bulk(w, r)
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/_ingest/pipeline/"):
		body, err := io.ReadAll(r.Body)
		require.NoError(m.t, err)

		m.mu.Lock()
		defer m.mu.Unlock()
		status := http.StatusOK
		if m.pipeCalls < len(m.pipeStatus) {
			status = m.pipeStatus[m.pipeCalls]
		}
		m.pipeCalls++
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = fmt.Fprintf(w, `{"error":{"type":"parse_exception","reason":"bad pipeline"},"status":%d}`, status)

			return
		}
		m.pipelines[strings.TrimPrefix(r.URL.Path, "/_ingest/pipeline/")] = string(body)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	default:
		m.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (m *esMock) bulk(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type item struct {
		Index  string `json:"_index"`
		Status int    `json:"status"`
		Error  any    `json:"error,omitempty"`
	}
	var items []map[string]item
	hasErrors := false

	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	for scanner.Scan() {
		var meta map[string]map[string]any
		require.NoError(m.t, json.Unmarshal(scanner.Bytes(), &meta))
		require.True(m.t, scanner.Scan())
		var doc map[string]any
		require.NoError(m.t, json.Unmarshal(scanner.Bytes(), &doc))

		for action, params := range meta {
			index, _ := params["_index"].(string)
			msg, _ := doc["message"].(string)
			m.attempts[msg]++

			status := http.StatusCreated
			if m.docStatus != nil {
				status = m.docStatus(doc, m.attempts[msg])
			}
			it := item{Index: index, Status: status}
			if status > http.StatusCreated {
				hasErrors = true
				it.Error = map[string]any{"type": "es_rejected_execution_exception", "reason": "rejected with " + http.StatusText(status)}
				if status == http.StatusBadRequest {
					it.Error = map[string]any{"type": "mapper_parsing_exception", "reason": "failed to parse"}
				}
			} else {
				m.docs = append(m.docs, bulkDoc{Action: action, Index: index, Doc: doc})
			}
			items = append(items, map[string]item{action: it})
		}
	}
	require.NoError(m.t, scanner.Err())

	resp, err := json.Marshal(map[string]any{"took": 1, "errors": hasErrors, "items": items})
	require.NoError(m.t, err)
	_, _ = w.Write(resp)
}

func (m *esMock) indexed() []bulkDoc {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]bulkDoc(nil), m.docs...)
}

func testConfig(url string) essink.Config {
	cfg := essink.DefaultConfig()
	cfg.Endpoints = []string{url}
	cfg.FlushInterval = time.Hour
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 5 * time.Millisecond

	return cfg
}

func startESMock(t *testing.T, m *esMock) string {
	t.Helper()

	server := httptest.NewServer(m)
	t.Cleanup(server.Close)

	return server.URL
}
