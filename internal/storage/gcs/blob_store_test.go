package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler, prefix string) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: prefix})
	require.NoError(t, err)
	return store
}

func TestPutObject(t *testing.T) {
	objectName := "runs/0190-run.csv"
	data := "INTERNAL_ID,AWARD_ID\n1,A\n"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, objectName, r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), data)
		assert.Contains(t, string(body), "text/csv")
		fmt.Fprintln(w, `{"name":"`+objectName+`","bucket":"test-bucket"}`)
	})

	store := newTestStore(t, handler, "runs")
	uri, err := store.PutObject(context.Background(), objectName, "text/csv", strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/"+objectName, uri)
}

func TestPutObjectServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store := newTestStore(t, handler, "")
	_, err := store.PutObject(context.Background(), "x.csv", "text/csv", strings.NewReader("a"))
	assert.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	store := newTestStore(t, http.NotFoundHandler(), "")
	_, err := store.PutObject(context.Background(), " ", "", strings.NewReader("a"))
	assert.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "run-1.csv"},
		{"govcontracts", "govcontracts/run-1.csv"},
		{"/govcontracts/raw/", "govcontracts/raw/run-1.csv"},
	}
	for _, tt := range tests {
		store := &BlobStore{bucket: "b", prefix: strings.Trim(tt.prefix, "/")}
		assert.Equal(t, tt.want, store.ObjectPath("run-1"))
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	assert.Error(t, err)
}
