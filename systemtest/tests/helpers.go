package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
)

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doJSONWithAuth(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// NewFakeUpstream serves the handshake and batch endpoints the way the
// external verification service does: a token-less landing page, a JSON
// csrf endpoint, and an event-stream batch response that succeeds every
// submitted id.
func NewFakeUpstream() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>verification portal</body></html>")
	})
	mux.HandleFunc("/api/csrf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"csrfToken":"systemtest-csrf"}`)
	})
	mux.HandleFunc("/api/batch", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			VerificationIDs []string `json:"verificationIds"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, id := range req.VerificationIDs {
			fmt.Fprintf(w, "event: processing\ndata: {\"verificationId\":%q,\"currentStep\":\"processing\"}\n\n", id)
			fmt.Fprintf(w, "event: result\ndata: {\"verificationId\":%q,\"status\":\"SUCCESS\",\"resultUrl\":\"https://verify.example.com/r/%s\"}\n\n", id, id)
		}
	})
	return httptest.NewServer(mux)
}

func doRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
