package handlers

import (
	"github.com/gin-gonic/gin"

	"bakery/internal/middleware"
	"bakery/internal/models"
)

// RegisterRoutes mounts the order and payment API on r. Every route except
// health requires a bearer token signed with jwtSecret.
func RegisterRoutes(r gin.IRouter, d *Deps, jwtSecret string) {
	api := r.Group("/api")
	api.GET("/health", Health(d))

	auth := middleware.Authenticate(jwtSecret, d.Log)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	orderRoutes := api.Group("/orders")
	orderRoutes.Use(auth)
	{
		orderRoutes.POST("/create", CreateOrder(d))
		orderRoutes.GET("", GetOrders(d))
		orderRoutes.GET("/admin/all", adminOnly, GetAllOrders(d))
		orderRoutes.GET("/:id", GetOrder(d))
		orderRoutes.PUT("/:id/cancel", CancelOrder(d))
		orderRoutes.POST("/:id/review", AddReview(d))
		orderRoutes.PUT("/:id/status", adminOnly, UpdateOrderStatus(d))
	}

	paymentRoutes := api.Group("/payment")
	paymentRoutes.Use(auth)
	{
		paymentRoutes.POST("/create-order", CreatePaymentOrder(d))
		paymentRoutes.POST("/verify", VerifyPayment(d))
		paymentRoutes.POST("/failure", PaymentFailure(d))
		paymentRoutes.POST("/refund", adminOnly, RefundPayment(d))
		paymentRoutes.GET("/:paymentId", GetPaymentDetails(d))
	}
}
