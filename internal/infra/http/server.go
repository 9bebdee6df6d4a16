package http

import (
	"net/http"
	"time"

	"receipts/internal/config"
	"receipts/internal/domain"
	"receipts/internal/infra/metrics"
	"receipts/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg     config.Config
	r       *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	generateUC   *usecase.GenerateReceipt
	verifyUC     *usecase.VerifyReceipt
	checkpointUC *usecase.LogCheckpoint
	log          usecase.ReceiptLog
	index        usecase.ReceiptIndex
	signingKey   *domain.PublicKey

	authenticator domain.Authenticator

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Generate   *usecase.GenerateReceipt
	Verify     *usecase.VerifyReceipt
	Checkpoint *usecase.LogCheckpoint
	Log        usecase.ReceiptLog
	// Index is optional; reads fall back to the log.
	Index      usecase.ReceiptIndex
	SigningKey *domain.PublicKey

	Authenticator domain.Authenticator
	RateLimiter   domain.RateLimiter
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

func NewServer(cfg config.Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger, deps.Metrics))

	s := &Server{
		cfg:           cfg,
		r:             r,
		logger:        logger,
		metrics:       deps.Metrics,
		generateUC:    deps.Generate,
		verifyUC:      deps.Verify,
		checkpointUC:  deps.Checkpoint,
		log:           deps.Log,
		index:         deps.Index,
		signingKey:    deps.SigningKey,
		authenticator: deps.Authenticator,
	}
	if s.log == nil && s.generateUC != nil {
		s.log = s.generateUC.Log
	}
	if s.authenticator == nil && cfg.APIKey != "" {
		s.authenticator = NewAPIKeyAuthenticator(cfg.APIKey)
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initRateLimit(limiter domain.RateLimiter) {
	s.rateLimiter = limiter
	s.rateLimitRequests = s.cfg.RateLimitRequests
	s.rateLimitWindow = s.cfg.RateLimitWindow()
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		indexMode := "none"
		if s.index != nil {
			indexMode = "postgres"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "index": indexMode})
	})
	if s.metrics != nil {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.r.Group("/v1")
	{
		v1.POST("/receipts", s.handleGenerate)
		v1.POST("/receipts/verify", s.handleVerify)
		v1.GET("/receipts", s.handleList)
		v1.GET("/receipts/:hash", s.handleGet)

		v1.GET("/log/checkpoint", s.handleCheckpoint)
		v1.GET("/log/inclusion/:hash", s.handleInclusionProof)
		v1.GET("/log/consistency", s.handleConsistencyProof)

		v1.GET("/keys/signing", s.handleSigningKey)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// HTTPServer wraps the router with the configured address and timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
