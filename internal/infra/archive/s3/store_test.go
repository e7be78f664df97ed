package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/light-bringer/supplytrace-ledger/internal/app/product/contracts"
)

// mockRoundTripper fakes the path-style PUT and GET object calls.
type mockRoundTripper struct {
	mu    sync.Mutex
	state map[string]stored
}

type stored struct {
	body        []byte
	contentType string
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// /<bucket>/<key>
	key := strings.TrimPrefix(req.URL.Path, "/ledger-archive/")

	switch req.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		m.state[key] = stored{body: body, contentType: req.Header.Get("Content-Type")}
		return response(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil
	case http.MethodGet:
		st, ok := m.state[key]
		if !ok {
			body := []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return response(http.StatusNotFound, body, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return response(http.StatusOK, st.body, http.Header{"Content-Type": {st.contentType}}), nil
	}
	return response(http.StatusNotImplemented, nil, http.Header{}), nil
}

func response(code int, body []byte, header http.Header) *http.Response {
	return &http.Response{
		StatusCode:    code,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        header,
	}
}

func newMockStore(t *testing.T) (*Store, *mockRoundTripper) {
	t.Helper()
	rt := &mockRoundTripper{state: make(map[string]stored)}
	s, err := New(context.Background(), Config{
		Bucket:          "ledger-archive",
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: rt},
	})
	require.NoError(t, err)
	return s, rt
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s, rt := newMockStore(t)

	key := "chains/p-1/00000003-0123456789abcdef.json"
	require.NoError(t, s.Put(ctx, key, []byte(`{"valid":true}`), "application/json"))
	assert.Equal(t, "application/json", rt.state[key].contentType)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"valid":true}`, string(got))
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.Get(context.Background(), "chains/missing.json")
	assert.ErrorIs(t, err, contracts.ErrArchiveObjectNotFound)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
