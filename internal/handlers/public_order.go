package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"bakery/internal/models"
	"bakery/internal/orders"
	"bakery/internal/payment"
)

/* =========================
   REQUEST DTOs
========================= */

type createOrderItemRequest struct {
	ProductID string `json:"product" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type createOrderRequest struct {
	Items           []createOrderItemRequest `json:"items" binding:"omitempty,dive"`
	DeliveryAddress models.DeliveryAddress   `json:"deliveryAddress"`
	PaymentMethod   string                   `json:"paymentMethod" binding:"required"`
	Subtotal        float64                  `json:"subtotal"`
	DeliveryCharge  float64                  `json:"deliveryCharge"`
	TotalAmount     float64                  `json:"totalAmount"`
	Notes           string                   `json:"notes"`

	// Present when the client paid through the gateway before checkout.
	PaymentStatus     string `json:"paymentStatus"`
	RazorpayOrderID   string `json:"razorpayOrderId"`
	RazorpayPaymentID string `json:"razorpayPaymentId"`
	RazorpaySignature string `json:"razorpaySignature"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type reviewRequest struct {
	Rating *int   `json:"rating" binding:"required"`
	Review string `json:"review"`
}

/* =========================
   CREATE ORDER
========================= */

func CreateOrder(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders/create"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		in, err := buildCreateInput(req)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		order, err := d.Orders.CreateOrder(ctx, p, in)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"success": true, "data": order})
	}
}

func buildCreateInput(req createOrderRequest) (orders.CreateInput, error) {
	items := make([]orders.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(item.ProductID))
		if err != nil {
			return orders.CreateInput{}, errors.New("invalid product id")
		}
		items = append(items, orders.ItemInput{ProductID: productID, Quantity: item.Quantity})
	}

	in := orders.CreateInput{
		Items:           items,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   models.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Subtotal:        req.Subtotal,
		DeliveryCharge:  req.DeliveryCharge,
		TotalAmount:     req.TotalAmount,
		Notes:           strings.TrimSpace(req.Notes),
	}

	if strings.EqualFold(req.PaymentStatus, string(models.PaymentPaid)) ||
		req.RazorpayOrderID != "" || req.RazorpayPaymentID != "" || req.RazorpaySignature != "" {
		in.Payment = &payment.Claim{
			GatewayOrderID: strings.TrimSpace(req.RazorpayOrderID),
			PaymentID:      strings.TrimSpace(req.RazorpayPaymentID),
			Signature:      strings.TrimSpace(req.RazorpaySignature),
		}
	}
	return in, nil
}

/* =========================
   READ ORDERS
========================= */

func GetOrders(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}

		page, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		list, err := d.Orders.ListOrders(ctx, p, page)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "page": page.Page, "limit": page.Limit, "data": list})
	}
}

func GetOrder(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		order, err := d.Orders.GetOrder(ctx, p, id)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
	}
}

/* =========================
   CANCEL / REVIEW
========================= */

func CancelOrder(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/cancel"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}

		var req cancelOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		order, err := d.Orders.CancelOrder(ctx, p, id, req.Reason)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Order cancelled and stock restored",
			"data":    order,
		})
	}
}

func AddReview(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders/:id/review"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}

		var req reviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		order, err := d.Orders.AddReview(ctx, p, id, *req.Rating, req.Review)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
	}
}
