package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
	"github.com/LeventeLantos/boleto-reminder/internal/model"
	"github.com/LeventeLantos/boleto-reminder/internal/repo"
	"github.com/LeventeLantos/boleto-reminder/internal/scheduler"
	"github.com/LeventeLantos/boleto-reminder/internal/service"
	"github.com/LeventeLantos/boleto-reminder/internal/storage"
)

// ChannelSession is the operator view of the session manager.
type ChannelSession interface {
	Start(ctx context.Context) error
	Logout(ctx context.Context) error
	Reset(ctx context.Context) error
	State() channel.Snapshot
	Challenge() (channel.Challenge, bool)
}

type Sender interface {
	Send(ctx context.Context, req channel.Request) (model.DeliveryAttempt, error)
	Recent(ctx context.Context, n int) ([]model.DeliveryAttempt, int, error)
}

type InvoiceNotifier interface {
	Notify(ctx context.Context, inv model.Invoice, kind service.Kind) (model.DeliveryAttempt, error)
}

type Deps struct {
	Session   ChannelSession
	Sender    Sender
	Invoices  repo.InvoiceRepository
	Notifier  InvoiceNotifier
	Files     storage.Store
	Scheduler *scheduler.Scheduler
	// Location interprets date-only due dates.
	Location *time.Location
	// QRWait is how long GET /channel/qr waits for a fresh challenge.
	QRWait time.Duration
	Logger *slog.Logger
}

type Handler struct {
	session  ChannelSession
	sender   Sender
	invoices repo.InvoiceRepository
	notifier InvoiceNotifier
	files    storage.Store
	sched    *scheduler.Scheduler
	loc      *time.Location
	qrWait   time.Duration
	log      *slog.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.QRWait < 0 {
		d.QRWait = 0
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		session:  d.Session,
		sender:   d.Sender,
		invoices: d.Invoices,
		notifier: d.Notifier,
		files:    d.Files,
		sched:    d.Scheduler,
		loc:      d.Location,
		qrWait:   d.QRWait,
		log:      d.Logger.With("component", "api"),
	}
}

func (h *Handler) Health(c *gin.Context) {
	snap := h.session.State()
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"channel":   snap.State,
		"connected": snap.Connected,
		"scheduler": h.sched.IsRunning(),
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) SchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStart(c *gin.Context) {
	h.sched.Start()
	c.JSON(http.StatusOK, h.sched.Status())
}

func (h *Handler) SchedulerStop(c *gin.Context) {
	h.sched.Stop()
	c.JSON(http.StatusOK, h.sched.Status())
}

// SchedulerRun runs one sweep now. A failed sweep is still a 200; its error
// is in lastError.
func (h *Handler) SchedulerRun(c *gin.Context) {
	_ = h.sched.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, h.sched.Status())
}

func (h *Handler) ListDeliveries(c *gin.Context) {
	limit := queryInt(c, "limit", 50, 500)

	items, total, err := h.sender.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "items": items})
}
