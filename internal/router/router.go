package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"studyhub/backend/internal/handler"
	"studyhub/backend/internal/middleware"
	"studyhub/backend/internal/service"
)

// TimerStats reports the size of the in-memory timer registry.
type TimerStats interface {
	ActiveRooms() int
	RunningRooms() int
}

type Deps struct {
	AuthService  *service.AuthService
	AuthHandler  *handler.AuthHandler
	RoomHandler  *handler.RoomHandler
	TimerHandler *handler.TimerHandler
	WSHandler    *handler.WSHandler
	Timers       TimerStats
	Origins      *middleware.OriginPolicy

	ControlRatePerSecond float64
	ControlRateBurst     int
}

func New(deps Deps) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(), gin.Recovery(), middleware.CORS(deps.Origins))

	engine.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if deps.Timers != nil {
			body["activeTimers"] = deps.Timers.ActiveRooms()
			body["runningTimers"] = deps.Timers.RunningRooms()
		}
		c.JSON(http.StatusOK, body)
	})

	requireAuth := middleware.Auth(deps.AuthService)

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", deps.AuthHandler.Register)
	auth.POST("/login", deps.AuthHandler.Login)
	auth.GET("/me", requireAuth, deps.AuthHandler.Me)

	rooms := api.Group("/rooms")
	rooms.Use(requireAuth)
	rooms.POST("", deps.RoomHandler.Create)
	rooms.GET("/:roomId", deps.RoomHandler.Get)
	rooms.DELETE("/:roomId", deps.RoomHandler.Delete)

	timer := rooms.Group("/:roomId/timer")
	timer.GET("", deps.TimerHandler.GetState)
	timer.GET("/history", deps.TimerHandler.GetHistory)
	timer.GET("/stats", deps.TimerHandler.GetStats)

	control := timer.Group("")
	control.Use(middleware.RateLimit(deps.ControlRatePerSecond, deps.ControlRateBurst))
	control.POST("/start", deps.TimerHandler.Start)
	control.POST("/pause", deps.TimerHandler.Pause)
	control.POST("/reset", deps.TimerHandler.Reset)

	ws := engine.Group("/ws")
	ws.Use(requireAuth)
	ws.GET("/rooms/:roomId", deps.WSHandler.Connect)

	return engine
}
