package remote_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsync-go/dsync/internal/remote"
)

type staticToken string

func (t staticToken) Token() (string, error) { return string(t), nil }

func newTestClient(t *testing.T, url string) *remote.Client {
	t.Helper()

	return remote.New(url, url, http.DefaultClient, staticToken("tok"), nil)
}

func TestListFolder_DecodesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/list_folder", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "/R", body["path"])

		_ = json.NewEncoder(w).Encode(remote.ListFolderResult{
			Entries: []remote.Entry{{Tag: remote.TagFile, Name: "a", PathLower: "/r/a", ContentHash: "abc"}},
			Cursor:  "cursor1",
			HasMore: false,
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	result, err := c.ListFolder(context.Background(), "/R")
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.True(t, result.Entries[0].IsFile())
	assert.False(t, result.HasMore)
}

func TestListFolderContinue_PassesCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/list_folder/continue", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "abc", body["cursor"])

		_ = json.NewEncoder(w).Encode(remote.ListFolderResult{HasMore: false})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.ListFolderContinue(context.Background(), "abc")
	require.NoError(t, err)
}

func TestGetMetadata_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(remote.Entry{Tag: remote.TagFile, Name: "a", ContentHash: "abc"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	entry, err := c.GetMetadata(context.Background(), "/R/a")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "abc", entry.ContentHash)
}

func TestGetMetadata_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error_summary": "path/not_found/", "error": {".tag": "path", "path": {".tag": "not_found"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	entry, err := c.GetMetadata(context.Background(), "/R/missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestDelete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/delete_v2", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	require.NoError(t, c.Delete(context.Background(), "/R/a"))
}

func TestDownload_ReturnsBytesAndMetadataHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/download", r.URL.Path)

		arg := r.URL.Query().Get("arg")
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(arg), &decoded))
		assert.Equal(t, "/R/a", decoded["path"])

		meta, _ := json.Marshal(remote.Entry{Tag: remote.TagFile, Name: "a", ContentHash: "abc"})
		w.Header().Set("Dropbox-API-Result", string(meta))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	data, meta, err := c.Download(context.Background(), "/R/a")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "abc", meta.ContentHash)
}

func TestDownload_MissingResultHeaderIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, _, err := c.Download(context.Background(), "/R/a")
	require.Error(t, err)
}

func TestUpload_SendsOctetStreamAndUpdateMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/files/upload", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))

		arg := r.URL.Query().Get("arg")
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(arg), &decoded))
		mode, ok := decoded["mode"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "update", mode[".tag"])
		assert.Equal(t, "rev123", mode["update"])

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body))

		_ = json.NewEncoder(w).Encode(remote.Entry{Tag: remote.TagFile, Name: "a", ContentHash: "newhash", Rev: "rev456"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	meta, err := c.Upload(context.Background(), "/R/a", []byte("payload"), "rev123")
	require.NoError(t, err)
	assert.Equal(t, "newhash", meta.ContentHash)
}

func TestUpload_NoRevOmitsMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arg := r.URL.Query().Get("arg")
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(arg), &decoded))
		_, hasMode := decoded["mode"]
		assert.False(t, hasMode)

		_ = json.NewEncoder(w).Encode(remote.Entry{Tag: remote.TagFile})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Upload(context.Background(), "/R/a", []byte("x"), "")
	require.NoError(t, err)
}

func TestDoRetry_NonRetryableFailsImmediately(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.ListFolder(context.Background(), "/R")
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
