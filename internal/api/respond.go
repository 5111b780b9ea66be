package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/LeventeLantos/boleto-reminder/internal/channel"
	"github.com/LeventeLantos/boleto-reminder/internal/repo"
	"github.com/LeventeLantos/boleto-reminder/internal/storage"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// writeError maps domain errors onto status codes. Anything unknown is a 500.
func writeError(c *gin.Context, err error) {
	var (
		verr  *channel.ValidationError
		vfail validator.ValidationErrors
	)

	switch {
	case errors.As(err, &vfail):
		details := make([]fieldError, 0, len(vfail))
		for _, fe := range vfail {
			details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Details: details})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, errorResponse{Error: verr.Error()})
	case errors.Is(err, errBadRequest):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidRef):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, errorResponse{Error: err.Error()})
	case errors.Is(err, channel.ErrSessionFailed):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, channel.ErrManagerClosed):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Details: err.Error()})
	}
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// bindError keeps validator failures as they are and turns decoding errors
// into bad requests.
func bindError(err error) error {
	var vfail validator.ValidationErrors
	if errors.As(err, &vfail) {
		return err
	}
	return badRequest("%v", err)
}

func queryInt(c *gin.Context, key string, def, max int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

var registerOnce sync.Once

// registerValidators adds the "phone" rule to gin's validator: at least ten
// digits once punctuation is stripped.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
			raw := fl.Field().String()
			if at := strings.IndexByte(raw, '@'); at >= 0 {
				raw = raw[:at]
			}
			n := 0
			for _, r := range raw {
				if r >= '0' && r <= '9' {
					n++
				}
			}
			return n >= 10 && n <= 15
		})
	})
}
