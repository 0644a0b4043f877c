package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Routes builds the HTTP router.
func (h *Handler) Routes(allowedOrigins []string) *gin.Engine {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = h.maxUpload
	r.Use(
		gin.CustomRecovery(h.recovered),
		cors.New(corsConfig),
		requestIDMiddleware(),
		accessLogMiddleware(h.logger),
	)

	r.GET("/", h.Index)
	r.HEAD("/", h.Index)
	if h.staticDir != "" {
		r.Static("/static", h.staticDir)
	}

	r.GET("/health", h.Health)
	r.POST("/upload_image", h.UploadImage)
	r.POST("/predict", h.Predict)
	r.POST("/predict/image", h.PredictFromImage)

	return r
}

// recovered turns a handler panic into the usual JSON error body.
func (h *Handler) recovered(c *gin.Context, rec any) {
	h.logger.Error("panic serving request",
		zap.String("request_id", requestID(c)),
		zap.String("path", c.Request.URL.Path),
		zap.Any("panic", rec))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": processErrPrefix + fmt.Sprint(rec)})
}

// requestIDMiddleware reuses the caller's X-Request-ID or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			zap.String("request_id", requestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func requestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return uuid.NewString()
}
