package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KomalSiddharth/Intelligent-manifestation-System/internal/services"
)

type VoiceHandler struct {
	svc services.VoiceService
}

func NewVoiceHandler(svc services.VoiceService) *VoiceHandler {
	return &VoiceHandler{svc: svc}
}

type StartSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	RoomURL   string `json:"room_url"`
	Token     string `json:"token"`
}

func (h *VoiceHandler) Start(c *gin.Context) {
	identity, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.svc.Start(c.Request.Context(), identity)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StartSessionResponse{
		Success:   true,
		SessionID: res.SessionID,
		RoomURL:   res.RoomURL,
		Token:     res.Token,
	})
}

func (h *VoiceHandler) End(c *gin.Context) {
	identity, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.svc.End(c.Request.Context(), identity); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *VoiceHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health(c.Request.Context()))
}
