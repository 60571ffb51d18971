package handlers

import (
	"encoding/json"
	"strings"

	"github.com/howitz/howitz/internal/http/viewmodels"
	"github.com/labstack/echo/v5"
)

// sessionKeyFlashToast holds a toast for the next rendered page. It survives
// Destroy because a Put after Destroy starts a fresh session.
const sessionKeyFlashToast = "flash_toast"

func (h *Handlers) setFlashToast(c *echo.Context, toast viewmodels.ToastViewData) {
	if h.Sessions == nil {
		return
	}
	toast, ok := cleanToast(toast)
	if !ok {
		return
	}
	payload, err := json.Marshal(toast)
	if err != nil {
		return
	}
	h.Sessions.Put(c.Request().Context(), sessionKeyFlashToast, string(payload))
}

func (h *Handlers) popFlashToast(c *echo.Context) *viewmodels.ToastViewData {
	if h.Sessions == nil {
		return nil
	}
	raw := h.Sessions.PopString(c.Request().Context(), sessionKeyFlashToast)
	if raw == "" {
		return nil
	}
	var toast viewmodels.ToastViewData
	if err := json.Unmarshal([]byte(raw), &toast); err != nil {
		return nil
	}
	toast, ok := cleanToast(toast)
	if !ok {
		return nil
	}
	return &toast
}

func cleanToast(toast viewmodels.ToastViewData) (viewmodels.ToastViewData, bool) {
	toast.Category = normalizeToastCategory(toast.Category)
	toast.Title = strings.TrimSpace(toast.Title)
	toast.Description = strings.TrimSpace(toast.Description)
	return toast, toast.Title != "" || toast.Description != ""
}

func normalizeToastCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	switch category {
	case "success", "error", "warning", "info":
		return category
	default:
		return "info"
	}
}
