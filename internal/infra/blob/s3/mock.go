package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MockBucket is an in-memory fake S3 bucket served over a custom
// http.RoundTripper. Only HeadObject and GetObject are implemented.
type MockBucket struct {
	mu      sync.Mutex
	objects map[string]mockObj
	hits    map[string]int
}

type mockObj struct {
	body        []byte
	contentType string
	etag        string
	modified    time.Time
}

// NewMockForTests returns a *Store wired to a MockBucket, without network access.
func NewMockForTests() (*Store, *MockBucket) {
	bucket := &MockBucket{objects: make(map[string]mockObj), hits: make(map[string]int)}
	store, err := New(context.Background(), Config{
		Region:          "us-east-1",
		Bucket:          "mock-bucket",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: bucket},
	})
	if err != nil {
		panic(fmt.Sprintf("mock s3 store: %v", err))
	}
	return store, bucket
}

// Put stores or replaces an object.
func (m *MockBucket) Put(key, body string) {
	m.PutAt(key, body, time.Now())
}

// PutAt is Put with an explicit modification time.
func (m *MockBucket) PutAt(key, body string, modified time.Time) {
	sum := sha256.Sum256([]byte(body))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = mockObj{
		body:        []byte(body),
		contentType: "text/csv",
		etag:        hex.EncodeToString(sum[:]),
		modified:    modified.UTC().Truncate(time.Second),
	}
}

func (m *MockBucket) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

// Requests returns how many requests of the given method reached the bucket.
func (m *MockBucket) Requests(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[method]
}

func (m *MockBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	m.mu.Lock()
	m.hits[req.Method]++
	obj, ok := m.objects[key]
	m.mu.Unlock()

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return emptyResponse(req, http.StatusNotImplemented, http.Header{}), nil
	}
	if !ok {
		if req.Method == http.MethodHead {
			return emptyResponse(req, http.StatusNotFound, http.Header{}), nil
		}
		body := "<?xml version=\"1.0\"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>"
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{"Content-Type": {"application/xml"}},
			Request:    req,
		}, nil
	}
	header := http.Header{}
	header.Set("Content-Length", fmt.Sprintf("%d", len(obj.body)))
	header.Set("Content-Type", obj.contentType)
	header.Set("ETag", "\""+obj.etag+"\"")
	header.Set("Last-Modified", obj.modified.Format(http.TimeFormat))
	if req.Method == http.MethodHead {
		return emptyResponse(req, http.StatusOK, header), nil
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		Header:        header,
		ContentLength: int64(len(obj.body)),
		Request:       req,
	}, nil
}

func emptyResponse(req *http.Request, status int, header http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: header, Request: req}
}
