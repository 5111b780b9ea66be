package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type RouterOptions struct {
	// CORSOrigins lists allowed origins; "*" or empty allows all.
	CORSOrigins []string
}

func Router(h *Handler, opts RouterOptions) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	r.MaxMultipartMemory = 8 << 20

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "boleto-reminder")
	})

	v1 := r.Group("/v1")
	{
		v1.GET("/health", h.Health)

		ch := v1.Group("/channel")
		{
			ch.GET("/status", h.ChannelStatus)
			ch.POST("/start", h.ChannelStart)
			ch.GET("/qr", h.ChannelQR)
			ch.GET("/qr.png", h.ChannelQRImage)
			ch.POST("/logout", h.ChannelLogout)
			ch.POST("/reset", h.ChannelReset)
			ch.POST("/test", h.ChannelTest)
		}

		v1.GET("/deliveries", h.ListDeliveries)

		inv := v1.Group("/invoices")
		{
			inv.GET("", h.ListInvoices)
			inv.POST("", h.CreateInvoice)
			inv.POST("/upload", h.UploadInvoice)
			inv.POST("/:id/remind", h.RemindInvoice)
			inv.PUT("/:id/paid", h.MarkInvoicePaid)
		}

		v1.GET("/uploads/*ref", h.ServeUpload)

		sc := v1.Group("/scheduler")
		{
			sc.GET("/status", h.SchedulerStatus)
			sc.POST("/start", h.SchedulerStart)
			sc.POST("/stop", h.SchedulerStop)
			sc.POST("/run", h.SchedulerRun)
		}
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	cfg.MaxAge = 12 * time.Hour

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
