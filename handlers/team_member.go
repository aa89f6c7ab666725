package handlers

import (
	"net/http"

	"bite-me-buddy/middleware"
	"bite-me-buddy/models"

	"github.com/gin-gonic/gin"
)

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Note   string             `json:"note"`
}

type VerifyOTPRequest struct {
	OTP string `json:"otp" binding:"required"`
}

func knownStatus(s models.OrderStatus) bool {
	for _, known := range models.AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// GetAssignedOrders lists the caller's open assignments; ?include_closed=true adds finished ones
func (h *Handler) GetAssignedOrders(c *gin.Context) {
	includeClosed := c.Query("include_closed") == "true"
	orders, err := h.orders.ListAssignedOrders(c.Request.Context(), middleware.GetUserID(c), includeClosed)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// UpdateOrderStatus moves an order one step through the state machine.
// Used by team members on their own orders and by admins on any order.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !knownStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status", "valid_statuses": models.AllStatuses})
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status, actorOf(c), req.Note)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated to " + string(order.Status),
		"order":   order,
	})
}

// GenerateOTP issues a fresh delivery code and texts it to the customer
func (h *Handler) GenerateOTP(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	issue, err := h.orders.GenerateOTP(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "OTP generated",
		"order_id":   issue.OrderID,
		"otp":        issue.Code,
		"expires_at": issue.ExpiresAt,
		"sms_sent":   issue.SMSSent,
	})
}

// VerifyOTP checks the customer's code and completes the delivery on a match
func (h *Handler) VerifyOTP(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.orders.VerifyOTP(c.Request.Context(), id, req.OTP, actorOf(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMyPlans lists plans addressed to the caller; ?today=true limits to today's
func (h *Handler) GetMyPlans(c *gin.Context) {
	plans, err := h.plans.ListForTeamMember(c.Request.Context(), middleware.GetUserID(c), c.Query("today") == "true")
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(plans), "plans": plans})
}

func (h *Handler) MarkPlanRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	plan, err := h.plans.MarkRead(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plan": plan})
}
