package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(Config{BaseURL: srv.URL}), srv
}

func TestAcquireCsrfSessionFromMetaTag(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><meta name="csrf-token" content="tok-meta"></head></html>`))
	}))
	defer srv.Close()

	session, err := client.AcquireCsrfSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-meta", session.Token)
}

func TestAcquireCsrfSessionFromHeader(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Csrf-Token", "tok-header")
	}))
	defer srv.Close()

	session, err := client.AcquireCsrfSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-header", session.Token)
}

func TestAcquireCsrfSessionFromCookie(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "tok-cookie"})
	}))
	defer srv.Close()

	session, err := client.AcquireCsrfSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-cookie", session.Token)
	assert.Contains(t, session.Cookie, "XSRF-TOKEN=tok-cookie")
}

func TestAcquireCsrfSessionFallsBackToEndpoint(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/csrf" {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"csrfToken": "tok-json"})
			return
		}
		w.Write([]byte("<html>no token here</html>"))
	}))
	defer srv.Close()

	session, err := client.AcquireCsrfSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-json", session.Token)
}

func TestAcquireCsrfSessionInlineAssignment(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script>window.csrfToken = "tok-inline";</script>`))
	}))
	defer srv.Close()

	session, err := client.AcquireCsrfSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-inline", session.Token)
}

func TestAcquireCsrfSessionExhaustsChain(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nothing"))
	}))
	defer srv.Close()

	_, err := client.AcquireCsrfSession(context.Background())
	assert.ErrorIs(t, err, ErrNoCsrfToken)
}

func TestCookiesMergeAcrossChain(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/csrf" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "second"})
			w.Header().Set("X-Csrf-Token", "tok")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "first"})
		http.SetCookie(w, &http.Cookie{Name: "region", Value: "eu"})
	}))
	defer srv.Close()

	session, err := client.AcquireCsrfSession(context.Background())
	require.NoError(t, err)
	// last value per cookie name wins
	assert.Contains(t, session.Cookie, "session=second")
	assert.Contains(t, session.Cookie, "region=eu")
}

func TestSubmitBatch(t *testing.T) {
	var gotToken, gotAccept string
	var gotBody []byte
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("X-Csrf-Token", "tok")
		case "/api/batch":
			gotToken = r.Header.Get("X-CSRF-Token")
			gotAccept = r.Header.Get("Accept")
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte("event: processing\ndata: {}\n\n"))
		}
	}))
	defer srv.Close()

	stream, err := client.SubmitBatch(context.Background(), []string{"6a00000000000000000000aa"}, "secret-cdk")
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "tok", gotToken)
	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, "6a00000000000000000000aa", gjson.GetBytes(gotBody, "verificationIds.0").String())
	assert.Equal(t, "secret-cdk", gjson.GetBytes(gotBody, "hCaptchaToken").String())
	assert.Equal(t, "google-student", gjson.GetBytes(gotBody, "programId").String())

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Contains(t, string(data), "event: processing")
}

func TestSubmitBatchRejectsNon2xx(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("X-Csrf-Token", "tok")
			return
		}
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := client.SubmitBatch(context.Background(), []string{"6a00000000000000000000aa"}, "secret-cdk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSubmitBatchRequiresSecret(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.SubmitBatch(context.Background(), []string{"6a00000000000000000000aa"}, "")
	assert.Error(t, err)
}

func TestPollStatusParsesJSON(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("X-Csrf-Token", "tok")
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "SUCCESS", "resultUrl": "https://x/y"})
	}))
	defer srv.Close()

	payload, err := client.PollStatus(context.Background(), "check-1")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", gjson.GetBytes(payload, "status").String())
}

func TestPollStatusWrapsRawText(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("X-Csrf-Token", "tok")
			return
		}
		w.Write([]byte("gateway exploded"))
	}))
	defer srv.Close()

	payload, err := client.PollStatus(context.Background(), "check-1")
	require.NoError(t, err)
	assert.Equal(t, "error", gjson.GetBytes(payload, "status").String())
	assert.Equal(t, "gateway exploded", gjson.GetBytes(payload, "message").String())
}
