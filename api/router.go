package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter creates and configures the Gin router.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	config := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 1 && s.cfg.CORSOrigins[0] == "*" {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.cfg.CORSOrigins
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(config))

	router.GET("/health", s.healthCheck)

	// Public share downloads live outside /api.
	router.POST("/s/:token", s.downloadShared)

	api := router.Group("/api")
	{
		// Background tasks
		api.POST("/tasks/bucket-delete/:bucket", s.startBucketDelete)
		api.POST("/tasks/prefix-delete/:bucket", s.startPrefixDelete)
		api.POST("/tasks/bulk-delete", s.startBulkDelete)
		api.POST("/tasks/calculate-size", s.startCalculateSize)
		api.GET("/tasks/active", s.listActiveTasks)
		api.GET("/tasks/:id/progress", s.getTaskProgress)
		api.DELETE("/tasks/:id/cancel", s.cancelTask)

		// Buckets
		api.GET("/buckets", s.listBuckets)
		api.POST("/buckets", s.createBucket)
		api.DELETE("/buckets/:bucket", s.startBucketDelete)
		api.GET("/buckets/:bucket/size", s.getBucketSize)

		// Objects
		api.GET("/buckets/:bucket/objects", s.listObjects)
		api.POST("/buckets/:bucket/objects", s.uploadObject)
		api.GET("/buckets/:bucket/objects/download", s.downloadObject)
		api.GET("/buckets/:bucket/objects/metadata", s.getObjectMetadata)
		api.DELETE("/buckets/:bucket/objects", s.deleteObject)
		api.POST("/buckets/:bucket/folders", s.createFolder)

		// Storage accounts
		api.GET("/accounts", s.listAccounts)
		api.POST("/accounts", s.createAccount)
		api.GET("/accounts/:id", s.getAccount)
		api.PUT("/accounts/:id", s.updateAccount)
		api.DELETE("/accounts/:id", s.deleteAccount)
		api.POST("/accounts/:id/default", s.setDefaultAccount)
		api.POST("/accounts/:id/test", s.testAccount)

		// Share links
		api.GET("/shares", s.listShares)
		api.POST("/shares", s.createShare)
		api.DELETE("/shares/:id", s.deleteShare)
	}

	return router
}

// healthCheck reports service liveness and task load.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"active_tasks": len(s.store.Active()),
	})
}
