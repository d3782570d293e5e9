package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/marketvendor/vendor-sync/internal/auth"
	"github.com/marketvendor/vendor-sync/internal/replication"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "vendor_sync_user_id"

	defaultBodyLimitBytes    = 12 << 20
	defaultHeartbeatInterval = 25 * time.Second
	bearerPrefix             = "Bearer "
	accessTokenQueryKey      = "access_token"
)

var (
	errMissingGoogleVerifier = errors.New("google verifier dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingUserResolver   = errors.New("user resolver dependency required")
	errMissingSyncService    = errors.New("sync service dependency required")
	errMissingHealthChecker  = errors.New("health checker dependency required")
)

type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (auth.GoogleClaims, error)
}

type SessionTokenManager interface {
	IssueSessionToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type UserResolver interface {
	ResolveUserID(ctx context.Context, claims auth.GoogleClaims) (string, error)
}

type SyncService interface {
	Push(ctx context.Context, request replication.PushRequest) (replication.PushResult, error)
	Pull(ctx context.Context, userID string, cursor int64, limit int) (replication.PullResult, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}

type Dependencies struct {
	GoogleVerifier    GoogleVerifier
	TokenManager      SessionTokenManager
	Users             UserResolver
	Sync              SyncService
	Health            HealthChecker
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	BodyLimitBytes    int64
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUserResolver
	}
	if deps.Sync == nil {
		return nil, errMissingSyncService
	}
	if deps.Health == nil {
		return nil, errMissingHealthChecker
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bodyLimit := deps.BodyLimitBytes
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyLimitBytes
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(bodyLimitMiddleware(bodyLimit))

	handler := &httpHandler{
		verifier:  deps.GoogleVerifier,
		tokens:    deps.TokenManager,
		users:     deps.Users,
		sync:      deps.Sync,
		health:    deps.Health,
		realtime:  realtime,
		heartbeat: heartbeat,
		logger:    logger,
	}

	router.GET("/health", handler.handleHealth)
	router.GET("/health1", handler.handleLiveness)
	router.POST("/auth/google", handler.handleGoogleAuth)

	protected := router.Group("/sync")
	protected.POST("/push", handler.authorizeRequest, handler.handlePush)
	protected.GET("/pull", handler.authorizeRequest, handler.handlePull)
	protected.GET("/stream", handler.authorizeStreamRequest, handler.handleStream)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Authorization", "Content-Type", "Last-Event-ID"},
		MaxAge:          12 * time.Hour,
	})
}

// bodyLimitMiddleware caps request bodies; handlers observe *http.MaxBytesError when it is exceeded.
func bodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

type httpHandler struct {
	verifier  GoogleVerifier
	tokens    SessionTokenManager
	users     UserResolver
	sync      SyncService
	health    HealthChecker
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

type authRequestPayload struct {
	IDToken  any `json:"idToken"`
	DeviceID any `json:"deviceId"`
}

type authResponsePayload struct {
	Token     string `json:"token"`
	UserID    string `json:"userId"`
	ExpiresIn int64  `json:"expiresIn"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := bindJSONObject(c, &request); err != nil {
		h.respondBindError(c, err)
		return
	}
	idToken, ok := request.IDToken.(string)
	if !ok || idToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idToken"})
		return
	}
	if deviceID, ok := request.DeviceID.(string); !ok || deviceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_deviceId"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), idToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_google_token"})
		return
	}

	userID, err := h.users.ResolveUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to resolve user identity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "auth_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{Token: token, UserID: userID, ExpiresIn: expiresIn})
}

// authorizeRequest accepts only an Authorization: Bearer header.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}
	h.authorizeToken(c, strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
}

// authorizeStreamRequest also accepts the token as a query parameter, since EventSource clients
// cannot set headers.
func (h *httpHandler) authorizeStreamRequest(c *gin.Context) {
	if token := strings.TrimSpace(c.Query(accessTokenQueryKey)); token != "" {
		h.authorizeToken(c, token)
		return
	}
	h.authorizeRequest(c)
}

func (h *httpHandler) authorizeToken(c *gin.Context, token string) {
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
		return
	}
	userID, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Next()
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	if err := h.health.Check(c.Request.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "db": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "db": true})
}

func (h *httpHandler) handleLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
