package httpserver

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", s.metricsEndpoint)

	api := s.echo.Group("/api/v1")
	api.Use(s.middleware.RateLimit.Handler())

	tasks := api.Group("/tasks")
	tasks.GET("", s.listActiveTasks)
	tasks.POST("/:kind", s.submitTask, s.middleware.RateLimit.LimitParam("kind"))
	tasks.GET("/:id", s.getTaskStatus)
	tasks.GET("/:id/wait", s.waitForTask)
	tasks.DELETE("/:id", s.cancelTask)

	cache := api.Group("/cache")
	cache.GET("/stats", s.cacheStats)
	cache.DELETE("", s.clearCache)
	cache.DELETE("/responses/:user", s.invalidateUserResponses)
}
