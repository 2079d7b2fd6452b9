package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"bakery/internal/payment"
)

type createPaymentOrderRequest struct {
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency"`
	Receipt  string  `json:"receipt"`
}

type verifyPaymentRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
	OrderID           string `json:"orderId"`
}

type paymentFailureRequest struct {
	OrderID string `json:"orderId"`
	Error   struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

type refundRequest struct {
	PaymentID string   `json:"paymentId" binding:"required"`
	Amount    *float64 `json:"amount"`
}

func CreatePaymentOrder(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/payment/create-order"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}

		var req createPaymentOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		order, err := d.Gateway.CreateGatewayOrder(ctx, p, req.Amount, req.Currency, req.Receipt)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
	}
}

func VerifyPayment(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/payment/verify"
		defer handlePanic(c, d.Log, route)

		if _, ok := principal(c); !ok {
			return
		}

		var req verifyPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		var orderID *primitive.ObjectID
		if raw := strings.TrimSpace(req.OrderID); raw != "" {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, "invalid order id")
				return
			}
			orderID = &id
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		verified, err := d.Reconciler.Reconcile(ctx, payment.Claim{
			GatewayOrderID: req.RazorpayOrderID,
			PaymentID:      req.RazorpayPaymentID,
			Signature:      req.RazorpaySignature,
		}, orderID)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Payment verified successfully",
			"paymentId": verified.PaymentID,
			"duplicate": verified.Duplicate,
			"data":      verified.Order,
		})
	}
}

func PaymentFailure(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/payment/failure"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}

		var req paymentFailureRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		if raw := strings.TrimSpace(req.OrderID); raw != "" {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, "invalid order id")
				return
			}

			ctx, cancel := d.requestContext(c)
			defer cancel()

			if _, err := d.Reconciler.RecordFailure(ctx, p, id, req.Error.Description); err != nil {
				writeError(c, d.Log, route, err)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment failure recorded"})
	}
}

func GetPaymentDetails(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/payment/:paymentId"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		details, err := d.Gateway.PaymentDetails(ctx, p, c.Param("paymentId"))
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": details})
	}
}

func RefundPayment(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/payment/refund"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}

		var req refundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		refund, err := d.Gateway.Refund(ctx, p, req.PaymentID, req.Amount)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Refund initiated", "data": refund})
	}
}
