package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/LeventeLantos/boleto-reminder/internal/model"
	"github.com/LeventeLantos/boleto-reminder/internal/repo"
	"github.com/LeventeLantos/boleto-reminder/internal/service"
	"github.com/LeventeLantos/boleto-reminder/internal/storage"
)

type invoiceRequest struct {
	Name    string  `json:"name" form:"name" binding:"required,max=200"`
	Phone   string  `json:"phone" form:"phone" binding:"required,phone"`
	Email   string  `json:"email" form:"email" binding:"omitempty,email"`
	TaxID   string  `json:"taxId" form:"taxId" binding:"omitempty,max=32"`
	Address string  `json:"address" form:"address" binding:"omitempty,max=300"`
	DueDate string  `json:"dueDate" form:"dueDate" binding:"required"`
	Amount  float64 `json:"amount" form:"amount" binding:"required,gt=0"`
	Notes   string  `json:"notes" form:"notes" binding:"omitempty,max=1000"`
}

func (r invoiceRequest) invoice(loc *time.Location) (model.Invoice, error) {
	due, err := parseDueDate(r.DueDate, loc)
	if err != nil {
		return model.Invoice{}, err
	}
	return model.Invoice{
		Name:        strings.TrimSpace(r.Name),
		Phone:       strings.TrimSpace(r.Phone),
		Email:       r.Email,
		TaxID:       r.TaxID,
		Address:     r.Address,
		DueDate:     due,
		AmountCents: int64(math.Round(r.Amount * 100)),
		Notes:       r.Notes,
	}, nil
}

type invoiceResponse struct {
	Invoice  model.Invoice          `json:"invoice"`
	Delivery *model.DeliveryAttempt `json:"delivery,omitempty"`
	File     *storage.Object        `json:"file,omitempty"`
	Warning  string                 `json:"warning,omitempty"`
}

func (h *Handler) ListInvoices(c *gin.Context) {
	f := repo.ListFilter{
		Status: model.InvoiceStatus(strings.ToUpper(c.Query("status"))),
		Limit:  queryInt(c, "limit", 100, 1000),
		Offset: queryInt(c, "offset", 0, 0),
	}

	items, err := h.invoices.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) CreateInvoice(c *gin.Context) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	inv, err := req.invoice(h.loc)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.invoices.Create(c.Request.Context(), &inv); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.notify(c.Request.Context(), inv, service.KindCreated))
}

// UploadInvoice is CreateInvoice from a multipart form with an optional
// boleto file in the "pdf" field.
func (h *Handler) UploadInvoice(c *gin.Context) {
	var req invoiceRequest
	if err := c.ShouldBind(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	inv, err := req.invoice(h.loc)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()

	var obj *storage.Object
	fh, err := c.FormFile("pdf")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(c, badRequest("read pdf: %v", err))
		return
	default:
		f, err := fh.Open()
		if err != nil {
			writeError(c, badRequest("read pdf: %v", err))
			return
		}
		saved, err := h.files.Save(ctx, fh.Filename, f)
		_ = f.Close()
		if err != nil {
			writeError(c, err)
			return
		}
		obj = &saved
		inv.AttachmentRef = saved.Ref
	}

	if err := h.invoices.Create(ctx, &inv); err != nil {
		if obj != nil {
			if derr := h.files.Delete(ctx, obj.Ref); derr != nil {
				h.log.Warn("failed to remove orphaned upload", "ref", obj.Ref, "error", derr)
			}
		}
		writeError(c, err)
		return
	}

	resp := h.notify(ctx, inv, service.KindCreated)
	resp.File = obj
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) RemindInvoice(c *gin.Context) {
	kind := service.KindReminder
	if raw := c.Query("kind"); raw != "" {
		k, ok := service.ParseKind(raw)
		if !ok {
			writeError(c, badRequest("unknown kind %q", raw))
			return
		}
		kind = k
	}

	inv, err := h.invoices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.notify(c.Request.Context(), inv, kind))
}

func (h *Handler) MarkInvoicePaid(c *gin.Context) {
	inv, err := h.invoices.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.notify(c.Request.Context(), inv, service.KindPaid))
}

func (h *Handler) ServeUpload(c *gin.Context) {
	ref := strings.TrimPrefix(c.Param("ref"), "/")

	rc, err := h.files.Open(c.Request.Context(), ref)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if ext := strings.TrimPrefix(path.Ext(ref), "."); ext != "" {
		if t := filetype.GetType(ext); t != filetype.Unknown {
			contentType = t.MIME.Value
		}
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
		"Content-Disposition": `inline; filename="` + path.Base(ref) + `"`,
	})
}

// notify sends kind for inv and reloads it so the response carries the
// recorded delivery. The invoice itself is already stored, so a failure here
// is reported as a warning rather than an error status.
func (h *Handler) notify(ctx context.Context, inv model.Invoice, kind service.Kind) invoiceResponse {
	attempt, err := h.notifier.Notify(ctx, inv, kind)
	resp := invoiceResponse{Invoice: inv}
	if err != nil {
		h.log.Error("notify failed", "invoice_id", inv.ID, "kind", kind, "error", err)
		resp.Warning = "notification not recorded: " + err.Error()
	}
	if attempt.ID != "" {
		resp.Delivery = &attempt
	}

	if fresh, err := h.invoices.Get(ctx, inv.ID); err == nil {
		resp.Invoice = fresh
	}
	return resp
}

func parseDueDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("02/01/2006", raw, loc); err == nil {
		return t, nil
	}
	return time.Time{}, badRequest("dueDate must be YYYY-MM-DD, DD/MM/YYYY or RFC3339, got %q", raw)
}
