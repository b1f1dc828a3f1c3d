package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server API服务器
type Server struct {
	router *gin.Engine
	srv    *http.Server
	log    *logrus.Entry
}

// NewServer 创建新的API服务器
func NewServer(port string, readTimeout, writeTimeout time.Duration, log *logrus.Entry) *Server {
	router := gin.New()

	// 设置中间件
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}

	return &Server{
		router: router,
		srv:    srv,
		log:    log.WithField("component", "api"),
	}
}

// SetupRoutes 设置路由
func (s *Server) SetupRoutes(handlers *Handlers) {
	// 健康检查
	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/ready", handlers.ReadinessCheck)
	s.router.GET("/status", handlers.Status)
	if handlers.metrics != nil {
		s.router.GET(handlers.metricsPath, gin.WrapH(handlers.metrics))
	}

	// API v1 路由组
	v1 := s.router.Group("/api/v1")
	{
		// 证件生命周期回调
		v1.POST("/documents/:id/alerts", handlers.RegenerateAlerts)
		v1.DELETE("/documents/:id/alerts", handlers.CancelAlerts)
		v1.GET("/documents/:id/alerts", handlers.ListAlerts)
		v1.GET("/documents/:id/urgency", handlers.DocumentUrgency)

		// 保养状态
		v1.GET("/bikes/:id/maintenance", handlers.BikeMaintenance)
	}
}

// Handler 路由，测试使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("API服务器启动")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("服务器关闭失败: %w", err)
	}

	s.log.Info("服务器已关闭")
	return nil
}

// requestLogger 用 logrus 记录访问日志
func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("请求失败")
			return
		}
		entry.Debug("请求完成")
	}
}
