package routers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/handlers"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/middlewares"
	"github.com/Lejs5034/LegionOfBrothers-sub000/internal/session"
	logger "github.com/Lejs5034/LegionOfBrothers-sub000/middleware/log"
	pkgmw "github.com/Lejs5034/LegionOfBrothers-sub000/pkg/middlewares"
	"github.com/Lejs5034/LegionOfBrothers-sub000/pkg/ws"
	"github.com/Lejs5034/LegionOfBrothers-sub000/utils/ratelimit"
)

// Deps is everything the router wires together. AuthLimiter and Hub are
// optional.
type Deps struct {
	Logger        *logger.Logger
	Checker       *session.Checker
	CORSOrigins   []string
	MaxConcurrent int
	AuthLimiter   *ratelimit.Limiter
	Hub           *ws.Hub

	// FilesPrefix and FilesRoot serve the local bucket when both are set.
	FilesPrefix string
	FilesRoot   string

	Auth     *handlers.AuthHandler
	Messages *handlers.MessageHandler
	Pins     *handlers.PinHandler
	RPC      *handlers.RPCHandler
	Prefs    *handlers.PrefsHandler
	Servers  *handlers.ServerHandler
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, d Deps) {
	config := cors.DefaultConfig()
	if len(d.CORSOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = d.CORSOrigins
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middlewares.TraceHeader}
	config.ExposeHeaders = []string{middlewares.TraceHeader}
	r.Use(cors.New(config))
	r.Use(middlewares.TraceMiddleware(d.Logger), middlewares.AccessLog(d.Logger))

	auth := middlewares.AuthMiddleware(d.Checker)

	// WebSocket 路由不计入并发上限，长连接会一直占用信号量
	if d.Hub != nil {
		r.GET("/ws", auth, func(c *gin.Context) {
			ws.ServeWs(d.Hub, c)
		})
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.FilesPrefix != "" && d.FilesRoot != "" {
		r.Static(d.FilesPrefix, d.FilesRoot)
	}

	api := r.Group("/api/v1")
	api.Use(pkgmw.MaxConcurrencyMiddleware(d.MaxConcurrent))

	RegisterAuthRoutes(api, d, auth)

	authed := api.Group("", auth)
	RegisterServerRoutes(authed, d.Servers)
	RegisterChannelRoutes(authed, d.Messages, d.Pins)
	RegisterDirectRoutes(authed, d.Messages)
	RegisterRPCRoutes(authed, d.RPC)

	authed.GET("/prefs", d.Prefs.Get)
	authed.PUT("/prefs", d.Prefs.Update)
}

func RegisterAuthRoutes(api *gin.RouterGroup, d Deps, auth gin.HandlerFunc) {
	group := api.Group("/auth")
	public := group.Group("")
	if d.AuthLimiter != nil {
		public.Use(pkgmw.RateLimitMiddleware(d.AuthLimiter, pkgmw.ByClientIP))
	}
	{
		public.POST("/register", d.Auth.Register)
		public.POST("/login", d.Auth.Login)
	}
	private := group.Group("", auth)
	{
		private.POST("/logout", d.Auth.Logout)
		private.POST("/refresh", d.Auth.Refresh)
		private.GET("/me", d.Auth.Me)
	}
}

func RegisterServerRoutes(r *gin.RouterGroup, h *handlers.ServerHandler) {
	group := r.Group("/servers")
	{
		group.POST("", h.Create)
		group.GET("", h.List)
		group.POST("/:server_id/join", h.Join)
		group.POST("/:server_id/channels", h.CreateChannel)
		group.POST("/:server_id/roles", h.CreateRole)
	}
}

func RegisterChannelRoutes(r *gin.RouterGroup, h *handlers.MessageHandler, pins *handlers.PinHandler) {
	group := r.Group("/channels/:channel_id")
	{
		group.GET("", h.Channel)
		group.GET("/members", h.Members)
		group.GET("/messages", h.ChannelHistory)
		group.POST("/messages", h.SendChannelMessage)

		group.GET("/pins", pins.List)
		group.POST("/pins", pins.Pin)
		group.DELETE("/pins/:message_id", pins.Unpin)
	}

	messages := r.Group("/messages/:message_id")
	{
		messages.PATCH("", h.UpdateMessage)
		messages.DELETE("", h.DeleteMessage)
	}
}

func RegisterDirectRoutes(r *gin.RouterGroup, h *handlers.MessageHandler) {
	group := r.Group("/dms")
	{
		group.GET("/:friend_id", h.DirectHistory)
		group.POST("/:friend_id", h.SendDirectMessage)
		group.GET("/:friend_id/members", h.DirectMembers)
		group.POST("/:friend_id/read", h.MarkDirectRead)
		group.PATCH("/:friend_id/messages/:message_id", h.UpdateDirectMessage)
		group.DELETE("/:friend_id/messages/:message_id", h.DeleteDirectMessage)
	}
}

func RegisterRPCRoutes(r *gin.RouterGroup, h *handlers.RPCHandler) {
	group := r.Group("/rpc")
	{
		group.POST("/ban_user", h.BanUser)
		group.POST("/unban_user", h.UnbanUser)
		group.POST("/change_user_rank", h.ChangeUserRank)
		group.POST("/promote_to_head", h.PromoteToHead)
		group.POST("/assign_server_role", h.AssignServerRole)
		group.POST("/check_course_upload", h.CheckCourseUpload)
	}
}
