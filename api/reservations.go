package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

type ReservationHandler struct {
	service booking.BookingUseCase
	loc     *time.Location
	log     *logger.Logger
}

type createReservationRequest struct {
	Start     time.Time       `json:"start"`
	PartySize int             `json:"party_size"`
	Identity  domain.Identity `json:"identity"`
}

type reservationResponse struct {
	ID               int64   `json:"id"`
	ConfirmationCode int     `json:"confirmation_code"`
	Start            string  `json:"start"`
	PartySize        int     `json:"party_size"`
	Status           string  `json:"status"`
	Source           string  `json:"source"`
	TableNumber      *int    `json:"table_number"`
	ArrivalTime      *string `json:"arrival_time,omitempty"`
	LeaveTime        *string `json:"leave_time,omitempty"`
}

type cancellationResponse struct {
	Reservation   *reservationResponse   `json:"reservation,omitempty"`
	WaitlistEntry *waitlistEntryResponse `json:"waitlist_entry,omitempty"`
}

type slotsResponse struct {
	Date      string   `json:"date"`
	PartySize int      `json:"party_size"`
	Slots     []string `json:"slots"`
}

func NewReservationHandler(service booking.BookingUseCase, loc *time.Location, log *logger.Logger) *ReservationHandler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReservationHandler{service: service, loc: loc, log: log}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("/reservations", h.create)
	router.DELETE("/reservations/:code", h.cancel)
	router.POST("/reservations/:code/arrival", h.arrival)
	router.POST("/reservations/:code/complete", h.complete)
	router.GET("/slots", h.slots)
	router.POST("/tables/:number/release", h.releaseTable)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.log, badRequest("malformed request body", err))
		return
	}

	res, err := h.service.Create(c.Request.Context(), booking.CreateReservationInput{
		Start:     req.Start,
		PartySize: req.PartySize,
		Identity:  req.Identity,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	code, ok := h.code(c)
	if !ok {
		return
	}
	result, err := h.service.Cancel(c.Request.Context(), code)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	var resp cancellationResponse
	if result.Reservation != nil {
		r := toReservationResponse(result.Reservation)
		resp.Reservation = &r
	}
	if result.WaitlistEntry != nil {
		e := toWaitlistEntryResponse(result.WaitlistEntry)
		resp.WaitlistEntry = &e
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReservationHandler) arrival(c *gin.Context) {
	code, ok := h.code(c)
	if !ok {
		return
	}
	res, err := h.service.RegisterArrival(c.Request.Context(), code)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) complete(c *gin.Context) {
	code, ok := h.code(c)
	if !ok {
		return
	}
	res, err := h.service.Complete(c.Request.Context(), code)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

// slots lists bookable starts for a calendar day in the restaurant's zone.
func (h *ReservationHandler) slots(c *gin.Context) {
	date, err := time.ParseInLocation(dateLayout, c.Query("date"), h.loc)
	if err != nil {
		writeError(c, h.log, badRequest("date must be YYYY-MM-DD", err))
		return
	}
	partySize, err := strconv.Atoi(c.Query("party_size"))
	if err != nil {
		writeError(c, h.log, badRequest("party_size must be an integer", err))
		return
	}

	slots, err := h.service.AlternativeSlots(c.Request.Context(), date, partySize)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	resp := slotsResponse{Date: date.Format(dateLayout), PartySize: partySize, Slots: make([]string, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, s.In(h.loc).Format(time.RFC3339))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ReservationHandler) releaseTable(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		writeError(c, h.log, badRequest("table number must be a positive integer", err))
		return
	}
	if err := h.service.ReleaseTable(c.Request.Context(), number); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ReservationHandler) code(c *gin.Context) (int, bool) {
	return parseCode(c, h.log)
}

func parseCode(c *gin.Context, log *logger.Logger) (int, bool) {
	code, err := strconv.Atoi(c.Param("code"))
	if err != nil || code < domain.MinConfirmationCode || code > domain.MaxConfirmationCode {
		writeError(c, log, badRequest("confirmation code must be six digits", err))
		return 0, false
	}
	return code, true
}

func toReservationResponse(res *domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:               res.ID,
		ConfirmationCode: res.ConfirmationCode,
		Start:            res.ReservationTime.Format(time.RFC3339),
		PartySize:        res.PartySize,
		Status:           string(res.Status),
		Source:           string(res.Source),
		TableNumber:      res.TableNumber,
		ArrivalTime:      formatOptional(res.ArrivalTime),
		LeaveTime:        formatOptional(res.LeaveTime),
	}
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
