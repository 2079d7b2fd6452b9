package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bakery/internal/models"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func GetAllOrders(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/admin/all"
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

		list, err := d.Orders.ListAllOrders(ctx, p, page)
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "count": len(list), "page": page.Page, "limit": page.Limit, "data": list})
	}
}

func UpdateOrderStatus(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/status"
		defer handlePanic(c, d.Log, route)

		p, ok := principal(c)
		if !ok {
			return
		}
		id, ok := objectIDParam(c, "id")
		if !ok {
			return
		}

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := d.requestContext(c)
		defer cancel()

		order, err := d.Orders.TransitionStatus(ctx, p, id, models.OrderStatus(strings.TrimSpace(req.Status)))
		if err != nil {
			writeError(c, d.Log, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "data": order})
	}
}
