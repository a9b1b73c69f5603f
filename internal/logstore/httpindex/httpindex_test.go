package httpindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex emulates the document index's create and write endpoints.
type fakeIndex struct {
	mu            sync.Mutex
	indexCreates  int
	mappings      []byte
	docs          map[string]document
	rejectWrites  bool
	alreadyExists bool
}

func (f *fakeIndex) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		body, _ := io.ReadAll(r.Body)

		if r.Method == http.MethodPut && r.URL.Path == "/conversations" {
			f.indexCreates++
			f.mappings = body
			if f.alreadyExists {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"type":"resource_already_exists_exception"}}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}

		if r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/conversations/_doc/") {
			if f.rejectWrites {
				http.Error(w, "disk full", http.StatusInternalServerError)
				return
			}
			id := strings.TrimPrefix(r.URL.Path, "/conversations/_doc/")
			var doc document
			if err := json.Unmarshal(body, &doc); err != nil {
				t.Errorf("bad document body: %v", err)
			}
			if f.docs == nil {
				f.docs = make(map[string]document)
			}
			f.docs[id] = doc
			w.WriteHeader(http.StatusCreated)
			return
		}

		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestStore(t *testing.T, f *fakeIndex) *Store {
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	return New(server.URL, "conversations", 2*time.Second)
}

func TestLogCreatesIndexWithMapping(t *testing.T) {
	f := &fakeIndex{}
	s := newTestStore(t, f)

	require.NoError(t, s.Log(context.Background(), "Hello", "Hi there!", "mistral"))

	assert.Equal(t, 1, f.indexCreates)

	var mapping struct {
		Mappings struct {
			Properties map[string]map[string]string `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(f.mappings, &mapping))
	assert.Equal(t, "date", mapping.Mappings.Properties["timestamp"]["type"])
	assert.Equal(t, "text", mapping.Mappings.Properties["prompt"]["type"])
	assert.Equal(t, "text", mapping.Mappings.Properties["response"]["type"])
	assert.Equal(t, "keyword", mapping.Mappings.Properties["model"]["type"])
}

func TestLogWritesDocument(t *testing.T) {
	f := &fakeIndex{}
	s := newTestStore(t, f)

	require.NoError(t, s.Log(context.Background(), "Hello", "Hi there!", "mistral"))

	require.Len(t, f.docs, 1)
	for id, doc := range f.docs {
		assert.NotEmpty(t, id)
		assert.Equal(t, "Hello", doc.Prompt)
		assert.Equal(t, "Hi there!", doc.Response)
		assert.Equal(t, "mistral", doc.Model)

		ts, err := time.Parse(time.RFC3339Nano, doc.Timestamp)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
	}
}

func TestLogIdenticalInputsProduceDistinctRecords(t *testing.T) {
	f := &fakeIndex{}
	s := newTestStore(t, f)

	require.NoError(t, s.Log(context.Background(), "Hello", "Hi there!", "mistral"))
	require.NoError(t, s.Log(context.Background(), "Hello", "Hi there!", "mistral"))

	assert.Len(t, f.docs, 2, "records are append-only, never merged")
	assert.Equal(t, 1, f.indexCreates, "index is ensured once per process")
}

func TestLogConcurrentFirstUseCreatesIndexOnce(t *testing.T) {
	f := &fakeIndex{}
	s := newTestStore(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Log(context.Background(), "Hello", "Hi there!", "mistral"); err != nil {
				t.Errorf("Log failed: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.indexCreates)
	assert.Len(t, f.docs, 10)
}

func TestLogIndexAlreadyExists(t *testing.T) {
	f := &fakeIndex{alreadyExists: true}
	s := newTestStore(t, f)

	require.NoError(t, s.Log(context.Background(), "Hello", "Hi there!", "mistral"))
	assert.Len(t, f.docs, 1)
}

func TestLogWriteRejected(t *testing.T) {
	f := &fakeIndex{rejectWrites: true}
	s := newTestStore(t, f)

	err := s.Log(context.Background(), "Hello", "Hi there!", "mistral")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected write")
}

func TestLogStoreUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()
	s := New(server.URL, "conversations", time.Second)

	err := s.Log(context.Background(), "Hello", "Hi there!", "mistral")
	require.Error(t, err)
}
