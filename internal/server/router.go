package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/roster/internal/auth"
	"github.com/MarcoPoloResearchLab/roster/internal/products"
	"github.com/MarcoPoloResearchLab/roster/internal/users"
)

const accountContextKey = "roster_account"

var (
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingProductsService = errors.New("products service dependency required")
	errMissingAccountStore    = errors.New("account store dependency required")
	errMissingTokenIssuer     = errors.New("token issuer dependency required")
	errMissingSessionVerifier = errors.New("session validator dependency required")
)

// AccountStore registers and resolves login accounts.
type AccountStore interface {
	Register(ctx context.Context, registration auth.Registration) (auth.Account, error)
	Authenticate(ctx context.Context, email, password string) (auth.Account, error)
	Lookup(ctx context.Context, id string) (auth.Account, error)
	Rename(ctx context.Context, id, name string) (auth.Account, error)
}

// SessionTokenIssuer signs session tokens.
type SessionTokenIssuer interface {
	Issue(account auth.Account) (string, time.Time, error)
	TTL() time.Duration
}

// SessionVerifier reads and validates the session of a request.
type SessionVerifier interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type Dependencies struct {
	Users          *users.Service
	Products       *products.Service
	Accounts       AccountStore
	Tokens         SessionTokenIssuer
	Sessions       SessionVerifier
	Realtime       *RealtimeDispatcher
	Metrics        *Metrics
	AllowedOrigins []string
	CookieSecure   bool
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Products == nil {
		return nil, errMissingProductsService
	}
	if deps.Accounts == nil {
		return nil, errMissingAccountStore
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.Sessions == nil {
		return nil, errMissingSessionVerifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		users:        deps.Users,
		products:     deps.Products,
		accounts:     deps.Accounts,
		tokens:       deps.Tokens,
		sessions:     deps.Sessions,
		realtime:     realtime,
		metrics:      deps.Metrics,
		cookieSecure: deps.CookieSecure,
		logger:       logger,
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Server is running")
	})

	api := router.Group("/api")
	api.GET("/users", handler.handleListUsers)
	api.GET("/users/:id", handler.handleGetUser)
	api.POST("/users/add", handler.handleCreateUser)
	api.PUT("/users/:id", handler.handleUpdateUser)
	api.DELETE("/users/:id", handler.handleDeleteUser)

	api.GET("/products", handler.handleListProducts)
	api.GET("/products/:id", handler.handleGetProduct)

	api.POST("/auth/register", handler.handleRegister)
	api.POST("/auth/login", handler.handleLogin)
	api.POST("/auth/logout", handler.handleLogout)
	api.POST("/auth/refresh", handler.handleRefresh)

	protected := api.Group("/protected")
	protected.Use(handler.authorizeRequest)
	protected.GET("/profile", handler.handleGetProfile)
	protected.PUT("/profile", handler.handleUpdateProfile)

	events := api.Group("/events")
	events.Use(handler.authorizeRequest)
	events.GET("/users", handler.handleUserEvents)

	router.NoRoute(handler.handleNotFound)

	return router, nil
}

type httpHandler struct {
	users        *users.Service
	products     *products.Service
	accounts     AccountStore
	tokens       SessionTokenIssuer
	sessions     SessionVerifier
	realtime     *RealtimeDispatcher
	metrics      *Metrics
	cookieSecure bool
	logger       *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

var availableEndpoints = gin.H{
	"GET /api/users":             "Get all users",
	"GET /api/users/:id":         "Get user by ID",
	"POST /api/users/add":        "Create new user",
	"PUT /api/users/:id":         "Update user by ID",
	"DELETE /api/users/:id":      "Delete user by ID",
	"GET /api/products":          "Get all products",
	"GET /api/products/:id":      "Get product by ID",
	"POST /api/auth/register":    "Register new user",
	"POST /api/auth/login":       "Login user (sets cookie)",
	"POST /api/auth/logout":      "Logout user (clears cookie)",
	"POST /api/auth/refresh":     "Refresh JWT token",
	"GET /api/protected/profile": "Get user profile (protected)",
	"PUT /api/protected/profile": "Update user profile (protected)",
	"GET /api/events/users":      "Stream user record changes (protected)",
}

func (h *httpHandler) handleNotFound(c *gin.Context) {
	message := "API endpoint not found: " + c.Request.Method + " " + c.Request.URL.RequestURI()
	c.JSON(http.StatusNotFound, gin.H{
		"success":            false,
		"message":            message,
		"error":              "Not Found",
		"availableEndpoints": availableEndpoints,
	})
}

func failure(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
