package main

import (
	"log"

	"reviewflow/internal/api"
	"reviewflow/internal/auth"
	"reviewflow/internal/config"
	"reviewflow/internal/connection"
	"reviewflow/internal/database"
	"reviewflow/internal/dispatch"
	"reviewflow/internal/gateway"
	"reviewflow/internal/store"
	"reviewflow/internal/webhook"
	"reviewflow/internal/ws"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.LoadConfig()
	database.InitGorm(cfg)

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	gatewayClient := gateway.NewClient(cfg)
	gormStore := store.New(database.GormDB)

	hub := ws.NewHub()
	go hub.Run()

	tracker := connection.NewTracker(gatewayClient, gormStore)
	tracker.OnChange = hub.NotifyConnection

	engine := dispatch.NewEngine(gatewayClient, gormStore)
	engine.OnOutcome = hub.NotifyOutcome

	authHandler := api.NewAuthHandler(cfg)
	adminHandler := api.NewAdminHandler()
	customerHandler := api.NewCustomerHandler()
	templateHandler := api.NewTemplateHandler(gormStore)
	settingsHandler := api.NewSettingsHandler(gormStore)
	messageHandler := api.NewMessageLogHandler()
	sessionHandler := api.NewSessionHandler(gatewayClient, tracker, gormStore)
	sendHandler := api.NewSendHandler(engine)
	webhookHandler := webhook.NewHandler(cfg, gormStore, hub)

	// Bridge webhook (unauthenticated, token-checked)
	r.POST("/webhook", webhookHandler.HandleEvent)

	// Realtime dashboard feed
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/auth/login", authHandler.Login)
		apiGroup.POST("/auth/logout", authHandler.Logout)

		adminGroup := apiGroup.Group("/admin", auth.RequireAuth(cfg.JWTSecret), auth.RequireAdmin())
		{
			adminGroup.GET("/businesses", adminHandler.ListBusinesses)
			adminGroup.POST("/businesses", adminHandler.CreateBusiness)
			adminGroup.GET("/businesses/:id", adminHandler.GetBusiness)
			adminGroup.PUT("/businesses/:id", adminHandler.UpdateBusiness)
			adminGroup.POST("/businesses/:id/users", adminHandler.CreateBusinessUser)
			adminGroup.PUT("/users/:id/password", adminHandler.ResetUserPassword)
			adminGroup.GET("/stats", adminHandler.Stats)
			adminGroup.GET("/message-stats", adminHandler.MessageStats)
		}

		businessGroup := apiGroup.Group("/business", auth.RequireAuth(cfg.JWTSecret), auth.RequireBusiness())
		{
			businessGroup.GET("/info", messageHandler.BusinessInfo)
			businessGroup.GET("/stats", messageHandler.BusinessStats)
			businessGroup.GET("/messages", messageHandler.ListMessages)

			businessGroup.GET("/customers", customerHandler.ListCustomers)
			businessGroup.POST("/customers", customerHandler.CreateCustomer)
			businessGroup.PUT("/customers/:id", customerHandler.UpdateCustomer)
			businessGroup.DELETE("/customers/:id", customerHandler.DeleteCustomer)

			businessGroup.GET("/message-templates", templateHandler.ListTemplates)
			businessGroup.POST("/message-templates", templateHandler.CreateTemplate)
			businessGroup.PUT("/message-templates/:id", templateHandler.UpdateTemplate)
			businessGroup.DELETE("/message-templates/:id", templateHandler.DeleteTemplate)

			businessGroup.GET("/settings", settingsHandler.GetSettings)
			businessGroup.PUT("/settings", settingsHandler.UpdateSettings)

			businessGroup.POST("/send-message", sendHandler.SendMessages)

			whatsappGroup := businessGroup.Group("/whatsapp")
			{
				whatsappGroup.POST("/session", sessionHandler.CreateSession)
				whatsappGroup.GET("/qrcode", sessionHandler.PairingCode)
				whatsappGroup.GET("/status", sessionHandler.Status)
				whatsappGroup.POST("/reset", sessionHandler.Reset)
			}
		}
	}

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
