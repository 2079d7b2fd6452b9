package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"bakery/internal/authz"
	"bakery/internal/inventory"
	"bakery/internal/middleware"
	"bakery/internal/models"
	"bakery/internal/orders"
	"bakery/internal/payment"
	"bakery/internal/store"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps is everything the HTTP handlers call into.
type Deps struct {
	Orders     *orders.Service
	Gateway    *payment.GatewayService
	Reconciler *payment.Reconciler
	DB         Pinger
	Log        *zap.Logger
	Timeout    time.Duration
}

func (d *Deps) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func handlePanic(c *gin.Context, log *zap.Logger, route string) {
	if r := recover(); r != nil {
		middleware.RequestLogger(c, log).Error("panic recovered",
			zap.String("route", route),
			zap.Any("panic", r),
			zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal server error"})
	}
}

func ensureDBConnection(ctx context.Context, db Pinger) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Ping(checkCtx)
}

func respondWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

// writeError maps a service error onto a status code and response body.
// Anything unrecognised is logged and reported as a 500.
func writeError(c *gin.Context, log *zap.Logger, route string, err error) {
	var (
		validationErr *orders.ValidationError
		stockErr      *inventory.StockError
		cannotCancel  *orders.CannotCancelError
		gatewayErr    *payment.GatewayError
	)

	switch {
	case errors.As(err, &validationErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": validationErr.Message,
			"errors":  []string{validationErr.Error()},
		})
	case errors.As(err, &stockErr):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Some items are not available",
			"errors":  stockErr.Messages(),
			"items":   stockErr.Failures,
		})
	case errors.Is(err, inventory.ErrInvalidQuantity):
		respondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrSignatureMismatch):
		middleware.RequestLogger(c, log).Warn("payment signature mismatch", zap.String("route", route))
		respondWithError(c, http.StatusBadRequest, "Payment verification failed. Invalid signature.")
	case errors.Is(err, authz.ErrUnauthenticated):
		respondWithError(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, authz.ErrForbidden):
		respondWithError(c, http.StatusForbidden, "Not authorized to access this order")
	case errors.Is(err, store.ErrNotFound):
		respondWithError(c, http.StatusNotFound, "Order not found")
	case errors.As(err, &cannotCancel):
		respondWithError(c, http.StatusBadRequest, cannotCancel.Error())
	case errors.Is(err, orders.ErrInvalidStatus):
		respondWithError(c, http.StatusBadRequest, "Invalid status")
	case errors.Is(err, orders.ErrInvalidState):
		respondWithError(c, http.StatusBadRequest, "Can only review delivered orders")
	case errors.Is(err, orders.ErrConcurrentUpdate):
		respondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrInvalidAmount), errors.Is(err, payment.ErrInvalidPaymentID):
		respondWithError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &gatewayErr):
		middleware.RequestLogger(c, log).Error("payment gateway error", zap.String("route", route), zap.Error(err))
		respondWithError(c, http.StatusBadGateway, "payment gateway error")
	case errors.Is(err, context.DeadlineExceeded):
		middleware.RequestLogger(c, log).Error("request timed out", zap.String("route", route), zap.Error(err))
		respondWithError(c, http.StatusGatewayTimeout, "request timed out")
	default:
		middleware.RequestLogger(c, log).Error("request failed", zap.String("route", route), zap.Error(err))
		respondWithError(c, http.StatusInternalServerError, "internal error")
	}
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "gt", "gte", "min":
				details = append(details, fmt.Sprintf("%s must be at least %s", field, fieldError.Param()))
			case "lte", "max":
				details = append(details, fmt.Sprintf("%s must be at most %s", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "validation failed",
			"errors":  details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body", "errors": []string{err.Error()}})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// principal returns the authenticated caller, answering 401 when absent.
func principal(c *gin.Context) (models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid id")
		return primitive.NilObjectID, false
	}
	return id, true
}
