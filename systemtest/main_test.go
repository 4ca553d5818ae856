package systemtest

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/verikey/verikey-server/internal/admin"
	internalhttp "github.com/verikey/verikey-server/internal/api/http"
	"github.com/verikey/verikey-server/internal/cardkey"
	"github.com/verikey/verikey-server/internal/db"
	"github.com/verikey/verikey-server/internal/ratelimit"
	"github.com/verikey/verikey-server/internal/stats"
	"github.com/verikey/verikey-server/internal/upstream"
	"github.com/verikey/verikey-server/internal/verification"
	"github.com/verikey/verikey-server/systemtest/postgres"
	"github.com/verikey/verikey-server/systemtest/tests"
)

const adminPassword = "changeme"

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping system test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.StartPostgres(ctx, "verikey", "verikey", "verikey")
	require.NoError(t, err)
	defer func() {
		_ = postgres.TerminatePostgres(ctx, container)
	}()

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(dbURL, "public"))

	pool, err := db.InitDB(ctx, dbURL, "public")
	require.NoError(t, err)
	defer pool.Close()

	fakeUpstream := tests.NewFakeUpstream()
	defer fakeUpstream.Close()

	keyStore := cardkey.NewStore(pool)
	statsStore := stats.NewStore(pool)
	auditLog := admin.NewAuditLog(pool)
	jobStore := verification.NewPostgresJobStore(pool, keyStore)
	client := upstream.NewClient(upstream.Config{BaseURL: fakeUpstream.URL})
	verifySvc := verification.NewService(jobStore, keyStore, statsStore, client, verification.Config{
		Secret:       "systemtest-captcha",
		Timeout:      5 * time.Second,
		PollInterval: 50 * time.Millisecond,
	})

	adminCfg := admin.Config{Password: adminPassword, JWTSecret: "systemtest-secret"}

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	internalhttp.SetupRoute(engine, &internalhttp.Services{
		Verification:  verifySvc,
		Jobs:          jobStore,
		Keys:          keyStore,
		Stats:         statsStore,
		Audit:         auditLog,
		Admin:         adminCfg,
		VerifyLimiter: ratelimit.NewLimiter(1000, time.Minute),
		LoginLimiter:  ratelimit.NewLimiter(1000, time.Minute),
	})

	t.Run("CardKeyLocking", func(t *testing.T) { tests.TestCardKeyLocking(t, keyStore) })
	t.Run("JobLifecycle", func(t *testing.T) { tests.TestJobLifecycle(t, keyStore, jobStore) })
	t.Run("VerifyStream", func(t *testing.T) { tests.TestVerifyStream(t, engine, keyStore) })
	t.Run("AdminFlow", func(t *testing.T) { tests.TestAdminFlow(t, engine, adminPassword) })
}
