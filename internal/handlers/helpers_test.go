package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/events"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/internal/testutil"
	"github.com/thereayou/bizdesk/pkg/auth"
	"github.com/thereayou/bizdesk/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	r   *gin.Engine
	db  *database.Database
	fx  *testutil.Fixture
	jwt *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDatabase(t)
	fx := testutil.Seed(t, db)
	log := logger.NewNop()
	deps := services.Deps{DB: db, Dispatcher: events.NewInline(log), Logger: log}

	jwt := auth.NewJWTManager("test-secret", time.Hour)
	authSvc := services.NewAuthService(db, jwt, auth.NewMemoryBlacklist(), log)
	pc := auth.NewPermissionChecker(auth.DefaultRoles())
	support := services.NewSupportChatService(deps)
	store := middleware.NewGuestStore("0123456789abcdef0123456789abcdef", false)

	r := gin.New()
	api := r.Group("/api")
	ah := NewAuthHandler(authSvc, log)
	api.POST("/auth/register", ah.Register)
	api.POST("/auth/login", ah.Login)
	api.POST("/auth/logout", middleware.Auth(authSvc), ah.Logout)
	api.GET("/auth/me", middleware.Auth(authSvc), ah.Me)

	sh := NewSupportChatHandler(support, store, middleware.NewRateLimiter(100, 100, log), log)
	sh.RegisterPublic(api)

	member := api.Group("", middleware.Auth(authSvc), middleware.RequireWorkspace())
	NewController(services.NewPaymentService(deps), log).Register(member, pc)
	NewController(services.NewChequeService(deps), log).Register(member, pc)
	NewInternalChatHandler(services.NewInternalChatService(deps), log).Register(member, pc)
	sh.Register(member, pc)

	return &testServer{r: r, db: db, fx: fx, jwt: jwt}
}

type request struct {
	method string
	path   string
	body   string
	as     *models.WorkspaceUser
	header map[string]string
}

func (s *testServer) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	httpReq := httptest.NewRequest(req.method, req.path, strings.NewReader(req.body))
	if req.body != "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.as != nil {
		token, _, err := s.jwt.Generate(req.as.UserID, req.as.WorkspaceID)
		require.NoError(t, err)
		httpReq.Header.Set("Authorization", "Bearer "+token)
		httpReq.Header.Set(middleware.WorkspaceHeader, strconv.FormatUint(uint64(req.as.WorkspaceID), 10))
	}
	for k, v := range req.header {
		httpReq.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, httpReq)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func requireCode(t *testing.T, w *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, w.Code, w.Body.String())
}

func cookieOf(w *httptest.ResponseRecorder) string {
	return strings.SplitN(w.Header().Get("Set-Cookie"), ";", 2)[0]
}
