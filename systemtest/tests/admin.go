package tests

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verikey/verikey-server/internal/api/http/dto"
)

// TestAdminFlow walks the whole management surface through the router:
// login, key provisioning, listing, updates, export and the audit
// trail.
func TestAdminFlow(t *testing.T, router *gin.Engine, password string) {
	t.Run("login rejects a wrong password", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/admin/login", dto.AdminLoginRequest{Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	rr := doJSON(router, "POST", "/api/admin/login", dto.AdminLoginRequest{Password: password})
	require.Equal(t, http.StatusOK, rr.Code)

	var login dto.AdminLoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	t.Run("protected routes reject missing token", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/admin/cardkeys", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	var codes []string
	t.Run("generate keys", func(t *testing.T) {
		rr := doJSONWithAuth(router, "POST", "/api/admin/cardkeys",
			dto.GenerateKeysRequest{Count: 3, MaxUses: 2, BatchNo: "admin-flow", Note: "system test"}, login.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.GenerateKeysResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.Codes, 3)
		codes = resp.Codes
	})

	t.Run("list with stats", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/admin/cardkeys?q=admin-flow&stats=true", nil, login.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListKeysResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, int64(3), resp.Total)
		require.NotNil(t, resp.Stats)
		assert.Equal(t, int64(3), resp.Stats.Unused)
	})

	t.Run("revoke and restore", func(t *testing.T) {
		rr := doJSONWithAuth(router, "PATCH", "/api/admin/cardkeys/"+codes[0],
			dto.KeyActionRequest{Action: "revoke"}, login.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "PATCH", "/api/admin/cardkeys/"+codes[0],
			dto.KeyActionRequest{Action: "restore"}, login.Token)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unknown action is rejected", func(t *testing.T) {
		rr := doJSONWithAuth(router, "PATCH", "/api/admin/cardkeys/"+codes[0],
			dto.KeyActionRequest{Action: "explode"}, login.Token)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("delete an unused key", func(t *testing.T) {
		rr := doJSONWithAuth(router, "DELETE", "/api/admin/cardkeys/"+codes[2], nil, login.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSONWithAuth(router, "DELETE", "/api/admin/cardkeys/"+codes[2], nil, login.Token)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("csv export", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/admin/export?q=admin-flow", nil, login.Token)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")

		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		// header plus the two remaining keys
		assert.Len(t, lines, 3)
		assert.Contains(t, lines[0], "code,status")
	})

	t.Run("audit trail recorded the actions", func(t *testing.T) {
		rr := doJSONWithAuth(router, "GET", "/api/admin/logs", nil, login.Token)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListLogsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Logs)

		actions := make(map[string]bool)
		for _, entry := range resp.Logs {
			actions[entry.Action] = true
		}
		assert.True(t, actions["login"])
		assert.True(t, actions["generate_keys"])
		assert.True(t, actions["key_revoke"])
		assert.True(t, actions["key_delete"])
		assert.True(t, actions["export_keys"])
	})
}
