package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"estatehub/server/config"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/metrics"
	"estatehub/server/internal/models"
)

// NewRouter builds the engine with the middleware chain and every route.
func NewRouter(cfg config.HTTPConfig, handler *Handler, limiter *RateLimiter, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(AccessLog(logger))
	router.Use(metrics.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
	}))

	router.GET("/healthz", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/messages", handler.Websocket)

	SetupRoutes(router, handler, limiter)
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler, limiter *RateLimiter) {
	api := router.Group("/api")
	api.Use(handler.auth.Optional())
	if limiter != nil {
		api.Use(limiter.Middleware())
	}
	required := handler.auth.Required()

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", handler.Register)
		authGroup.POST("/login", handler.Login)
		authGroup.GET("/me", required, handler.Me)
	}

	publishers := auth.RequireRoles(models.RoleAgencyAdmin, models.RoleAgent, models.RoleDeveloper)

	properties := api.Group("/properties")
	{
		properties.GET("", handler.SearchProperties)
		properties.GET("/:id", handler.GetProperty)
		properties.GET("/:id/similar", handler.SimilarProperties)
		properties.GET("/:id/nearby", handler.NearbyProperties)
		properties.POST("/:id/inquiries", handler.CreateInquiry)
		properties.POST("", required, publishers, handler.CreateProperty)
		properties.PATCH("/:id", required, publishers, handler.UpdateProperty)
		properties.DELETE("/:id", required, publishers, handler.ArchiveProperty)
		properties.POST("/:id/favorite", required, handler.AddFavorite)
		properties.DELETE("/:id/favorite", required, handler.RemoveFavorite)
	}
	api.GET("/favorites", required, handler.ListFavorites)
	api.GET("/recommendations", required, handler.RecommendedProperties)

	api.GET("/agencies", handler.ListAgencies)
	api.GET("/agencies/:id", handler.GetAgency)
	api.POST("/agencies", required, auth.RequireRoles(models.RoleAdmin), handler.CreateAgency)
	api.GET("/developers", handler.ListDevelopers)
	api.GET("/developers/:id", handler.GetDeveloper)

	agencyCRM := api.Group("/agency-crm", required, auth.RequireRoles(models.RoleAgencyAdmin, models.RoleAgent))
	{
		agencyCRM.GET("/members", handler.ListMembers)
		agencyCRM.POST("/members", handler.CreateMember)
		agencyCRM.PATCH("/members/:id", handler.UpdateMember)

		agencyCRM.GET("/leads", handler.ListAgencyLeads)
		agencyCRM.POST("/leads", handler.CreateAgencyLead)
		agencyCRM.GET("/leads/:id", handler.GetAgencyLead)
		agencyCRM.PATCH("/leads/:id", handler.UpdateAgencyLead)
		agencyCRM.POST("/leads/:id/convert", handler.ConvertLead)

		agencyCRM.GET("/deals/pipeline", handler.PipelineBoard)
		agencyCRM.POST("/deals", handler.CreateDeal)
		agencyCRM.GET("/deals/:id", handler.GetDeal)
		agencyCRM.PATCH("/deals/:id", handler.UpdateDeal)
		agencyCRM.DELETE("/deals/:id", handler.DeleteDeal)

		agencyCRM.GET("/commissions", handler.ListCommissions)
		agencyCRM.POST("/commissions/:id/pay", handler.PayCommission)

		agencyCRM.POST("/imports", handler.ImportListings)
	}

	developerCRM := api.Group("/developer-crm", required, auth.RequireRoles(models.RoleDeveloper))
	{
		developerCRM.GET("/projects", handler.ListProjects)
		developerCRM.POST("/projects", handler.CreateProject)
		developerCRM.PATCH("/projects/:id", handler.UpdateProject)

		developerCRM.GET("/leads", handler.ListDeveloperLeads)
		developerCRM.POST("/leads", handler.CreateDeveloperLead)
		developerCRM.GET("/leads/:id", handler.GetDeveloperLead)
		developerCRM.PATCH("/leads/:id", handler.UpdateDeveloperLead)
	}

	analyticsGroup := api.Group("/analytics")
	{
		analyticsGroup.GET("/developer/overview", required, auth.RequireRoles(models.RoleDeveloper), handler.DeveloperOverview)
		analyticsGroup.GET("/agency/overview", required, auth.RequireRoles(models.RoleAgencyAdmin, models.RoleAgent), handler.AgencyOverview)
		analyticsGroup.GET("/agency/agents", required, auth.RequireRoles(models.RoleAgencyAdmin), handler.AgentPerformance)
		analyticsGroup.GET("/market", handler.MarketStats)
		analyticsGroup.GET("/market/districts", handler.MarketDistricts)
	}

	conversations := api.Group("/conversations", required)
	{
		conversations.GET("", handler.ListConversations)
		conversations.POST("", handler.StartConversation)
		conversations.GET("/:id/messages", handler.ListMessages)
		conversations.POST("/:id/messages", handler.SendMessage)
		conversations.POST("/:id/read", handler.MarkConversationRead)
	}
}
