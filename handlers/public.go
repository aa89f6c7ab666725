package handlers

import (
	"net/http"

	"bite-me-buddy/models"
	"bite-me-buddy/statemachine"

	"github.com/gin-gonic/gin"
)

// ListServices returns every service on the menu (public)
func (h *Handler) ListServices(c *gin.Context) {
	list, err := h.catalog.ListServices(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(list), "services": list})
}

// GetService returns a service with its currently available items
func (h *Handler) GetService(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	svc, err := h.catalog.GetService(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": svc})
}

// GetStateMachineInfo describes the order lifecycle, generated from the transition table
func (h *Handler) GetStateMachineInfo(c *gin.Context) {
	actors := map[[2]models.OrderStatus][]models.Role{}
	var order [][2]models.OrderStatus
	for _, t := range statemachine.GetAllTransitions() {
		key := [2]models.OrderStatus{t.From, t.To}
		if _, seen := actors[key]; !seen {
			order = append(order, key)
		}
		actors[key] = append(actors[key], t.Actor)
	}

	info := make([]gin.H, 0, len(order))
	for _, key := range order {
		entry := gin.H{"from": key[0], "to": key[1], "actors": actors[key]}
		if key[1] == models.StatusDelivered {
			entry["via"] = "delivery OTP verification"
		}
		info = append(info, entry)
	}

	lifecycle := []models.OrderStatus{models.StatusPending}
	for next, ok := statemachine.Next(models.StatusPending); ok; next, ok = statemachine.Next(next) {
		lifecycle = append(lifecycle, next)
	}

	var terminal []models.OrderStatus
	for _, s := range models.AllStatuses {
		if s.IsTerminal() {
			terminal = append(terminal, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"state_machine":   info,
		"statuses":        models.AllStatuses,
		"lifecycle":       lifecycle,
		"terminal_states": terminal,
		"description":     "Bite Me Buddy order lifecycle",
	})
}
