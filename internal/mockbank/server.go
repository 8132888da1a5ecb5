// Package mockbank is a development stand-in for the backend auth and
// client microservices. It implements the documented request/response
// contract so the CLI and integration tests run without real services.
package mockbank

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/willbank/go-session-client/internal/config"
	"github.com/willbank/go-session-client/profiles"
)

const ctxUserID = "userID"

// Server wires the in-memory user store and token service behind the
// backend's HTTP contract.
type Server struct {
	engine *gin.Engine
	users  *UserRepo
	tokens *TokenService
	cron   *cron.Cron
	log    zerolog.Logger
}

func NewServer(cfg config.MockBankConfig, log zerolog.Logger) (*Server, error) {
	tokens, err := NewTokenService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return nil, errors.Wrap(err, "[mockbank.NewServer]")
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine: gin.New(),
		users:  NewUserRepo(),
		tokens: tokens,
		cron:   cron.New(),
		log:    log,
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/login", s.handleLogin)
	auth.POST("/register", s.handleRegister)
	auth.POST("/refresh", s.handleRefresh)
	auth.POST("/logout", s.authorized(), s.handleLogout)
	auth.GET("/me", s.authorized(), s.handleMe)

	api.GET("/clients/:id", s.authorized(), s.handleGetClient)
}

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// StartJobs schedules the hourly refresh-token purge.
func (s *Server) StartJobs() error {
	if _, err := s.cron.AddFunc("@hourly", func() {
		if purged := s.tokens.PurgeExpired(); purged > 0 {
			s.log.Info().Int("purged", purged).Msg("purged expired refresh tokens")
		}
	}); err != nil {
		return errors.Wrap(err, "[mockbank.StartJobs]")
	}
	s.cron.Start()
	return nil
}

// StopJobs stops the purge schedule.
func (s *Server) StopJobs() {
	s.cron.Stop()
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Phone     string `json:"phone" binding:"required"`
	Address   string `json:"address" binding:"required"`
	CIN       string `json:"cin" binding:"required"`
	FCMToken  string `json:"fcmToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authResponse struct {
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	Client       profiles.Profile `json:"client"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid email or password"})
		return
	}
	s.sendAuthResponse(c, http.StatusOK, user)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	user, err := s.users.Create(profiles.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		CIN:       req.CIN,
	}, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"message": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	s.sendAuthResponse(c, http.StatusCreated, user)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	userID, err := s.tokens.RedeemRefreshToken(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "refresh token invalid or expired"})
		return
	}
	user, err := s.users.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "account no longer exists"})
		return
	}

	accessToken, err := s.tokens.IssueAccessToken(user.Profile.ID, user.Profile.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

func (s *Server) handleLogout(c *gin.Context) {
	s.tokens.RevokeUser(c.GetInt64(ctxUserID))
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.users.GetByID(c.GetInt64(ctxUserID))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "account no longer exists"})
		return
	}
	c.JSON(http.StatusOK, user.Profile)
}

func (s *Server) handleGetClient(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid client id"})
		return
	}
	user, err := s.users.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "client not found"})
		return
	}
	c.JSON(http.StatusOK, user.Profile)
}

// authorized extracts and verifies the bearer token.
func (s *Server) authorized() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
			return
		}
		userID, err := s.tokens.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "token invalid or expired"})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func (s *Server) sendAuthResponse(c *gin.Context, status int, user *User) {
	accessToken, err := s.tokens.IssueAccessToken(user.Profile.ID, user.Profile.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.Profile.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(status, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Client:       user.Profile,
	})
}
