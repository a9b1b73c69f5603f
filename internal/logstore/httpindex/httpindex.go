// Package httpindex persists conversation records to an Elasticsearch-compatible
// document index over HTTP.
package httpindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"chatrelay/internal/logstore"
)

// indexMapping is the fixed schema of the conversation index: free-text search
// over prompt and response, exact-match filtering on model.
var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"timestamp": map[string]interface{}{"type": "date"},
			"prompt":    map[string]interface{}{"type": "text"},
			"response":  map[string]interface{}{"type": "text"},
			"model":     map[string]interface{}{"type": "keyword"},
		},
	},
}

type Store struct {
	baseURL string
	index   string
	client  *http.Client

	group singleflight.Group
	ready atomic.Bool
}

func New(baseURL, index string, timeout time.Duration) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
		client:  &http.Client{Timeout: timeout},
	}
}

type document struct {
	Timestamp string `json:"timestamp"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Model     string `json:"model"`
}

// Log writes one conversation document under a fresh identifier. The index is
// created with its mapping on first use.
func (s *Store) Log(ctx context.Context, prompt, response, model string) error {
	if err := s.ensureIndex(ctx); err != nil {
		return errors.Wrap(err, "failed to ensure conversation index")
	}

	record := logstore.NewRecord(prompt, response, model)
	body, err := json.Marshal(document{
		Timestamp: record.Timestamp.Format(time.RFC3339Nano),
		Prompt:    record.Prompt,
		Response:  record.Response,
		Model:     record.Model,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal conversation document")
	}

	url := fmt.Sprintf("%s/%s/_doc/%s", s.baseURL, s.index, record.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build document request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "log store unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("log store rejected write: %s: %s", resp.Status, readSnippet(resp.Body))
	}

	return nil
}

// ensureIndex creates the index once per process. Concurrent first use
// collapses to a single creation request.
func (s *Store) ensureIndex(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}

	_, err, _ := s.group.Do("ensure-index", func() (interface{}, error) {
		if s.ready.Load() {
			return nil, nil
		}
		if err := s.createIndex(ctx); err != nil {
			return nil, err
		}
		s.ready.Store(true)
		return nil, nil
	})
	return err
}

func (s *Store) createIndex(ctx context.Context) error {
	body, err := json.Marshal(indexMapping)
	if err != nil {
		return errors.Wrap(err, "failed to marshal index mapping")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.baseURL+"/"+s.index, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build index request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "log store unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		return nil
	}

	// Another writer (or a previous run) may have created the index already.
	snippet := readSnippet(resp.Body)
	if resp.StatusCode == http.StatusBadRequest && strings.Contains(snippet, "resource_already_exists_exception") {
		return nil
	}

	return errors.Errorf("failed to create index: %s: %s", resp.Status, snippet)
}

func (s *Store) Close() error {
	return nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
