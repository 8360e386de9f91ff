package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/service/waitlist"
	"github.com/gin-gonic/gin"
)

type WaitlistHandler struct {
	service waitlist.UseCase
	log     *logger.Logger
}

type joinWaitlistRequest struct {
	PartySize int             `json:"party_size"`
	Identity  domain.Identity `json:"identity"`
}

type waitlistEntryResponse struct {
	ID               int64   `json:"id"`
	ConfirmationCode int     `json:"confirmation_code"`
	PartySize        int     `json:"party_size"`
	Status           string  `json:"status"`
	EnqueueTime      string  `json:"enqueue_time"`
	OfferedAt        *string `json:"offered_at,omitempty"`
}

type seatingResponse struct {
	Entry       waitlistEntryResponse `json:"waitlist_entry"`
	Reservation reservationResponse   `json:"reservation"`
}

func NewWaitlistHandler(service waitlist.UseCase, log *logger.Logger) *WaitlistHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WaitlistHandler{service: service, log: log}
}

func (h *WaitlistHandler) Register(router *gin.RouterGroup) {
	router.POST("/waitlist", h.join)
	router.POST("/waitlist/:code/confirm", h.confirm)
}

func (h *WaitlistHandler) join(c *gin.Context) {
	var req joinWaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, badRequest("malformed request body", err))
		return
	}

	entry, err := h.service.Join(c.Request.Context(), waitlist.JoinWaitlistInput{
		PartySize: req.PartySize,
		Identity:  req.Identity,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toWaitlistEntryResponse(entry))
}

func (h *WaitlistHandler) confirm(c *gin.Context) {
	code, ok := parseCode(c, h.log)
	if !ok {
		return
	}
	seating, err := h.service.Confirm(c.Request.Context(), code)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, seatingResponse{
		Entry:       toWaitlistEntryResponse(seating.Entry),
		Reservation: toReservationResponse(seating.Reservation),
	})
}

func toWaitlistEntryResponse(e *domain.WaitlistEntry) waitlistEntryResponse {
	return waitlistEntryResponse{
		ID:               e.ID,
		ConfirmationCode: e.ConfirmationCode,
		PartySize:        e.PartySize,
		Status:           string(e.Status),
		EnqueueTime:      e.EnqueueTime.Format(time.RFC3339),
		OfferedAt:        formatOptional(e.OfferedAt),
	}
}
