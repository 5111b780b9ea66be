package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
)

const qrPNGSize = 320

func (h *Handler) ChannelStatus(c *gin.Context) {
	snap := h.session.State()

	instructions := "ready to send messages"
	switch snap.State {
	case channel.StateFailed:
		instructions = "session failed, POST /v1/channel/reset"
	case channel.StateConnected:
	default:
		instructions = "connect via GET /v1/channel/qr"
	}

	c.JSON(http.StatusOK, gin.H{
		"session":      snap,
		"timestamp":    time.Now().UTC(),
		"instructions": instructions,
	})
}

func (h *Handler) ChannelStart(c *gin.Context) {
	if err := h.session.Start(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.session.State())
}

// ChannelQR starts an idle session and waits briefly for its first challenge.
func (h *Handler) ChannelQR(c *gin.Context) {
	snap := h.session.State()
	switch snap.State {
	case channel.StateConnected:
		c.JSON(http.StatusOK, gin.H{"status": "connected", "session": snap})
		return
	case channel.StateFailed:
		c.JSON(http.StatusOK, gin.H{
			"status":  "failed",
			"message": "session failed, POST /v1/channel/reset",
			"session": snap,
		})
		return
	case channel.StateDisconnected:
		if err := h.session.Start(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
	}

	ch, ok := h.waitChallenge(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"status":    "initializing",
			"message":   "waiting for the channel, retry shortly",
			"refreshIn": 5,
			"session":   h.session.State(),
		})
		return
	}

	dataURL, err := ch.DataURL()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "qr_ready",
		"qrCode":   dataURL,
		"issuedAt": ch.IssuedAt.UTC(),
		"message":  "scan with WhatsApp on the phone",
	})
}

func (h *Handler) ChannelQRImage(c *gin.Context) {
	ch, ok := h.session.Challenge()
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no pending QR challenge"})
		return
	}
	png, err := ch.PNG(qrPNGSize)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) ChannelLogout(c *gin.Context) {
	if err := h.session.Logout(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "session": h.session.State()})
}

func (h *Handler) ChannelReset(c *gin.Context) {
	if err := h.session.Reset(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.session.State())
}

type testMessageRequest struct {
	Number  string `json:"number" binding:"required"`
	Message string `json:"message" binding:"required,max=4096"`
}

func (h *Handler) ChannelTest(c *gin.Context) {
	var req testMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}

	attempt, err := h.sender.Send(c.Request.Context(), channel.Request{Recipient: req.Number, Body: req.Message})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, attempt)
}

func (h *Handler) waitChallenge(c *gin.Context) (channel.Challenge, bool) {
	if ch, ok := h.session.Challenge(); ok {
		return ch, true
	}

	deadline := time.NewTimer(h.qrWait)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return channel.Challenge{}, false
		case <-deadline.C:
			return h.session.Challenge()
		case <-tick.C:
			if ch, ok := h.session.Challenge(); ok {
				return ch, true
			}
			if h.session.State().State == channel.StateConnected {
				return channel.Challenge{}, false
			}
		}
	}
}
