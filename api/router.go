package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/fyerfyer/rag-chat/api/handler"
	"github.com/fyerfyer/rag-chat/api/middleware"
	"github.com/fyerfyer/rag-chat/api/model"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	ingestHandler *handler.IngestHandler,
	queryHandler *handler.QueryHandler,
	healthHandler *handler.HealthHandler,
) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.Cors())

	router.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, model.ErrorResponse{
			Error:   "Method not allowed",
			TraceID: middleware.GetTraceID(c),
		})
	})
	router.NoRoute(notFound)

	api := router.Group("/api")
	{
		// 文档入库 - POST /api/ingest
		api.POST("/ingest", ingestHandler.Ingest)

		// 问答 - POST /api/query
		api.POST("/query", queryHandler.Query)

		// 健康检查 - GET /api/health
		api.GET("/health", healthHandler.Health)

		// 运行信息 - GET /api/admin
		api.GET("/admin", healthHandler.Admin)
	}

	return router
}

// RegisterWebUI 在目录存在时提供静态聊天页面
// 非API路径的GET请求回退到静态文件
func RegisterWebUI(router *gin.Engine, dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	fileServer := http.FileServer(http.Dir(dir))
	router.NoRoute(func(c *gin.Context) {
		method := c.Request.Method
		if (method != http.MethodGet && method != http.MethodHead) ||
			strings.HasPrefix(c.Request.URL.Path, "/api/") {
			notFound(c)
			return
		}
		fileServer.ServeHTTP(c.Writer, c.Request)
	})
	return true
}

// notFound 未知路由返回JSON错误
func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, model.ErrorResponse{
		Error:   "Not found",
		TraceID: middleware.GetTraceID(c),
	})
}
