package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Unknown-Bytes/formerr/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// 上下文键
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

const sessionValueKey = "sid"

// ErrTokensDisabled 未配置 jwt.secret 时不签发也不接受 bearer token
var ErrTokensDisabled = errors.New("bearer tokens are disabled")

// JWTClaims API 调用使用的 bearer token
type JWTClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Identifier 根据会话ID识别用户
type Identifier interface {
	Identify(ctx context.Context, sessionID string) (userID, email string, err error)
}

// Authenticator 会话 cookie 优先，其次 bearer JWT
type Authenticator struct {
	store      sessions.Store
	cookieName string
	identifier Identifier
	jwtSecret  []byte
	issuer     string
	tokenTTL   time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewAuthenticator 创建认证器；identifier 为空时只接受 JWT，jwt 密钥为空时关闭 bearer 通道
func NewAuthenticator(sessionCfg config.SessionConfig, jwtCfg config.JWTConfig, identifier Identifier, logger *zap.Logger) *Authenticator {
	store := sessions.NewCookieStore([]byte(sessionCfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionCfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   sessionCfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := jwtCfg.AccessTokenExpire
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	a := &Authenticator{
		store:      store,
		cookieName: sessionCfg.CookieName,
		identifier: identifier,
		issuer:     jwtCfg.Issuer,
		tokenTTL:   ttl,
		now:        time.Now,
		logger:     logger,
	}
	if jwtCfg.Secret != "" {
		a.jwtSecret = []byte(jwtCfg.Secret)
	} else {
		logger.Warn("jwt.secret is empty, bearer tokens disabled")
	}
	return a
}

// IssueToken 为已登录用户签发 API token
func (a *Authenticator) IssueToken(userID, email string) (string, time.Time, error) {
	if len(a.jwtSecret) == 0 {
		return "", time.Time{}, ErrTokensDisabled
	}
	now := a.now()
	expiresAt := now.Add(a.tokenTTL)
	claims := JWTClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Required 未登录时返回 401
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// Optional 识别到用户时写入上下文，否则按匿名继续
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		a.authenticate(c)
		c.Next()
	}
}

// Login 把会话ID写入签名 cookie
func (a *Authenticator) Login(c *gin.Context, sessionID string) error {
	session, _ := a.store.Get(c.Request, a.cookieName)
	session.Values[sessionValueKey] = sessionID
	return session.Save(c.Request, c.Writer)
}

// Logout 清除 cookie 并返回原会话ID
func (a *Authenticator) Logout(c *gin.Context) (string, error) {
	session, _ := a.store.Get(c.Request, a.cookieName)
	sessionID, _ := session.Values[sessionValueKey].(string)
	delete(session.Values, sessionValueKey)
	session.Options.MaxAge = -1
	return sessionID, session.Save(c.Request, c.Writer)
}

func (a *Authenticator) authenticate(c *gin.Context) bool {
	if userID, email, ok := a.fromSession(c); ok {
		c.Set(ContextUserID, userID)
		c.Set(ContextUserEmail, email)
		return true
	}
	if claims, ok := a.fromToken(c); ok {
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		return true
	}
	return false
}

func (a *Authenticator) fromSession(c *gin.Context) (string, string, bool) {
	if a.identifier == nil {
		return "", "", false
	}
	session, err := a.store.Get(c.Request, a.cookieName)
	if err != nil {
		return "", "", false
	}
	sessionID, _ := session.Values[sessionValueKey].(string)
	if sessionID == "" {
		return "", "", false
	}
	userID, email, err := a.identifier.Identify(c.Request.Context(), sessionID)
	if err != nil {
		a.logger.Debug("Session rejected", zap.Error(err))
		return "", "", false
	}
	return userID, email, true
}

func (a *Authenticator) fromToken(c *gin.Context) (*JWTClaims, bool) {
	if len(a.jwtSecret) == 0 {
		return nil, false
	}
	tokenString := bearerToken(c)
	if tokenString == "" {
		return nil, false
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, false
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, false
	}
	return claims, true
}
