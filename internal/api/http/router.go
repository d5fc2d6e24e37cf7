package http

import (
	"github.com/gin-gonic/gin"

	"github.com/fleetmesh/fleetmesh/internal/api/http/handler"
	"github.com/fleetmesh/fleetmesh/internal/api/http/middleware"
	"github.com/fleetmesh/fleetmesh/internal/audit"
	"github.com/fleetmesh/fleetmesh/internal/auth"
	"github.com/fleetmesh/fleetmesh/internal/commands"
	"github.com/fleetmesh/fleetmesh/internal/configs"
	"github.com/fleetmesh/fleetmesh/internal/nodes"
	"github.com/fleetmesh/fleetmesh/internal/users"
)

type Services struct {
	Auth     *auth.Service
	Users    *users.Service
	Nodes    *nodes.Service
	Commands *commands.Service
	Configs  *configs.Service
	Audit    *audit.Recorder
	Version  string
}

const (
	roleAdmin    = string(users.RoleAdmin)
	roleOperator = string(users.RoleOperator)
)

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.Version)
	engine.GET("/health", healthHandler.Check)

	authHandler := handler.NewAuthHandler(srvs.Auth, srvs.Users, srvs.Audit)
	nodeHandler := handler.NewNodeHandler(srvs.Nodes, srvs.Audit)
	commandHandler := handler.NewCommandHandler(srvs.Commands, srvs.Audit)
	configHandler := handler.NewConfigHandler(srvs.Configs)

	userAuth := middleware.JWTAuth(srvs.Auth)
	nodeAuth := middleware.NodeAuth(srvs.Nodes)
	canWrite := middleware.RequireRole(roleAdmin, roleOperator)
	adminOnly := middleware.RequireRole(roleAdmin)

	v1 := engine.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/logout", userAuth, authHandler.Logout)
		authGroup.GET("/me", userAuth, authHandler.Me)
		authGroup.POST("/users", userAuth, adminOnly, authHandler.CreateUser)
		authGroup.GET("/users", userAuth, adminOnly, authHandler.ListUsers)
	}

	nodeGroup := v1.Group("/nodes")
	{
		// Registration is open: the returned token is what authenticates
		// everything the node does afterwards.
		nodeGroup.POST("/register", nodeHandler.Register)
		nodeGroup.POST("/heartbeat", nodeAuth, nodeHandler.Heartbeat)

		nodeGroup.GET("", userAuth, nodeHandler.List)
		nodeGroup.GET("/:node_id", userAuth, nodeHandler.Get)
		nodeGroup.GET("/:node_id/telemetry", userAuth, nodeHandler.Telemetry)
		nodeGroup.DELETE("/:node_id", userAuth, canWrite, nodeHandler.Delete)
	}

	commandGroup := v1.Group("/commands")
	{
		commandGroup.POST("", userAuth, canWrite, commandHandler.Create)
		commandGroup.GET("", userAuth, commandHandler.List)
		commandGroup.GET("/:id", userAuth, commandHandler.Get)
		commandGroup.DELETE("/:id", userAuth, canWrite, commandHandler.Cancel)

		commandGroup.POST("/:id/result", nodeAuth, commandHandler.ReportResult)
	}

	configGroup := v1.Group("/configs", userAuth)
	{
		configGroup.POST("", canWrite, configHandler.Set)
		configGroup.GET("", configHandler.List)
		configGroup.GET("/:key", configHandler.Get)
		configGroup.DELETE("/:key", canWrite, configHandler.Delete)
	}
}
