package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verikey/verikey-server/internal/api/http/dto"
	"github.com/verikey/verikey-server/internal/cardkey"
	"github.com/verikey/verikey-server/internal/sse"
	"github.com/verikey/verikey-server/internal/verification"
)

// TestVerifyStream submits a real batch through the router against the
// fake upstream and checks the event stream, the key disposition and
// the follow-up query endpoints.
func TestVerifyStream(t *testing.T, router *gin.Engine, keys *cardkey.Store) {
	ctx := context.Background()
	const verificationID = "6a0000000000000000005e5e"

	codes, err := keys.Generate(ctx, 1, cardkey.GenerateOptions{BatchNo: "verify-stream"})
	require.NoError(t, err)
	code := codes[0]

	t.Run("mismatched batch is a plain 400", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/verify", dto.VerifyRequest{
			Links:    []string{"https://verify.example.com/verify?verificationId=" + verificationID},
			CardKeys: []string{code, "extra"},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	rr := doJSON(router, "POST", "/api/verify", dto.VerifyRequest{
		Links:    []string{"https://verify.example.com/verify?verificationId=" + verificationID},
		CardKeys: []string{code},
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/event-stream")

	events := readEvents(t, rr.Body.String())
	require.GreaterOrEqual(t, len(events), 2)

	assert.Equal(t, "queued", events[0].Event)
	var queued verification.QueuedEvent
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &queued))
	assert.Equal(t, verificationID, queued.VerificationID)
	assert.NotEmpty(t, queued.JobID)

	last := events[len(events)-1]
	assert.Equal(t, "result", last.Event)
	var result verification.ResultEvent
	require.NoError(t, json.Unmarshal([]byte(last.Data), &result))
	assert.Equal(t, verification.StatusSuccess, result.Status)
	assert.Equal(t, "https://verify.example.com/r/"+verificationID, result.ResultURL)

	t.Run("key was consumed", func(t *testing.T) {
		key, err := keys.Get(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, cardkey.StatusConsumed, key.Status)
		assert.Equal(t, 1, key.UsedCount)
	})

	t.Run("repeat submission is reported as duplicate", func(t *testing.T) {
		codes, err := keys.Generate(ctx, 1, cardkey.GenerateOptions{BatchNo: "verify-stream"})
		require.NoError(t, err)

		rr := doJSON(router, "POST", "/api/verify", dto.VerifyRequest{
			Links:    []string{"https://verify.example.com/verify?verificationId=" + verificationID},
			CardKeys: []string{codes[0]},
		})
		require.Equal(t, http.StatusOK, rr.Code)

		events := readEvents(t, rr.Body.String())
		require.Len(t, events, 1)
		assert.Equal(t, "duplicate", events[0].Event)

		var dup verification.DuplicateEvent
		require.NoError(t, json.Unmarshal([]byte(events[0].Data), &dup))
		assert.Equal(t, queued.JobID, dup.JobID)

		// the second key was never touched
		key, err := keys.Get(ctx, codes[0])
		require.NoError(t, err)
		assert.Equal(t, cardkey.StatusUnused, key.Status)
	})

	t.Run("query by verification id", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/query", dto.QueryRequest{VerificationID: verificationID})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.QueryResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.Found)
		assert.Equal(t, string(verification.StatusSuccess), resp.Status)
		assert.Equal(t, code, resp.CardKeyCode)
		assert.NotEmpty(t, resp.VerifiedAt)
	})

	t.Run("query without criteria is a 400", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/query", dto.QueryRequest{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("stats counted the settlement", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/stats", nil)
		recorder := doRequest(router, req)
		require.Equal(t, http.StatusOK, recorder.Code)

		var resp dto.StatsResponse
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
		assert.GreaterOrEqual(t, resp.TodaySuccess, int64(1))
		assert.Equal(t, resp.TodaySuccess+resp.TodayFail, resp.TodayTotal)
	})
}

func readEvents(t *testing.T, body string) []sse.Event {
	t.Helper()
	scanner := sse.NewScanner(strings.NewReader(body))
	var events []sse.Event
	for {
		ev, err := scanner.Next()
		if err != nil {
			break
		}
		events = append(events, ev)
	}
	return events
}
