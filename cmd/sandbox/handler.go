package main

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode" binding:"required"`
	Amount            int64  `json:"Amount" binding:"required,gt=0"`
	PhoneNumber       string `json:"PhoneNumber" binding:"required"`
	CallBackURL       string `json:"CallBackURL" binding:"required"`
	AccountReference  string `json:"AccountReference"`
}

type stkQueryRequest struct {
	CheckoutRequestID string `json:"CheckoutRequestID" binding:"required"`
}

type Handler struct {
	sandbox *Sandbox
}

func NewHandler(sandbox *Sandbox) *Handler {
	return &Handler{sandbox: sandbox}
}

func (h *Handler) Token(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"access_token": strings.ReplaceAll(uuid.NewString(), "-", ""),
		"expires_in":   "3599",
	})
}

func (h *Handler) StkPush(c *gin.Context) {
	var req stkPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"errorCode":    "400.002.02",
			"errorMessage": "Bad Request - " + err.Error(),
		})
		return
	}

	push := h.sandbox.newPush(req.Amount, req.PhoneNumber, req.CallBackURL)
	h.sandbox.scheduleCallback(push.checkoutID)

	log.Info().
		Str("checkout_request_id", push.checkoutID).
		Str("phone", req.PhoneNumber).
		Int64("amount", req.Amount).
		Str("account_reference", req.AccountReference).
		Msg("stk push accepted")

	c.JSON(http.StatusOK, gin.H{
		"MerchantRequestID":   push.merchantID,
		"CheckoutRequestID":   push.checkoutID,
		"ResponseCode":        "0",
		"ResponseDescription": "Success. Request accepted for processing",
		"CustomerMessage":     "Success. Request accepted for processing",
	})
}

func (h *Handler) StkQuery(c *gin.Context) {
	var req stkQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errorCode": "400.002.02", "errorMessage": "Bad Request - " + err.Error()})
		return
	}

	push, ok := h.sandbox.lookup(req.CheckoutRequestID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"errorCode": "404.001.04", "errorMessage": "Invalid CheckoutRequestID"})
		return
	}
	if !push.settled {
		c.JSON(http.StatusInternalServerError, gin.H{
			"errorCode":    errorStillProcessing,
			"errorMessage": "The transaction is being processed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ResponseCode":        "0",
		"ResponseDescription": "The service request has been accepted successsfully",
		"MerchantRequestID":   push.merchantID,
		"CheckoutRequestID":   push.checkoutID,
		"ResultCode":          strconv.Itoa(push.resultCode),
		"ResultDesc":          push.resultDesc,
	})
}

type smsRecipient struct {
	StatusCode int    `json:"statusCode"`
	Number     string `json:"number"`
	Status     string `json:"status"`
	Cost       string `json:"cost"`
	MessageID  string `json:"messageId"`
}

// SendSMS answers a bulk send. Failed recipients are reported inline, and
// the accepted ones get a delivery report later when a report URL is set.
func (h *Handler) SendSMS(c *gin.Context) {
	if c.GetHeader("apiKey") == "" {
		c.String(http.StatusUnauthorized, "The supplied authentication is invalid")
		return
	}
	to := c.PostForm("to")
	message := c.PostForm("message")
	if to == "" || message == "" {
		c.String(http.StatusBadRequest, "to and message are required")
		return
	}

	var recipients []smsRecipient
	accepted := 0
	for _, number := range strings.Split(to, ",") {
		number = strings.TrimSpace(number)
		if number == "" {
			continue
		}
		r := smsRecipient{Number: number, Cost: "0"}
		if h.sandbox.succeed() {
			r.StatusCode = 101
			r.Status = "Success"
			r.Cost = "KES 0.8000"
			r.MessageID = "ATXid_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			accepted++
			h.sandbox.scheduleDeliveryReport(r.MessageID, number)
		} else {
			r.StatusCode = 406
			r.Status = "UserInBlacklist"
		}
		recipients = append(recipients, r)
	}

	log.Info().Int("recipients", len(recipients)).Int("accepted", accepted).Msg("bulk send")
	c.JSON(http.StatusCreated, gin.H{
		"SMSMessageData": gin.H{
			"Message":    "Sent to " + strconv.Itoa(accepted) + "/" + strconv.Itoa(len(recipients)) + " Total Cost: KES " + strconv.FormatFloat(0.8*float64(accepted), 'f', 4, 64),
			"Recipients": recipients,
		},
	})
}

func (h *Handler) Health(c *gin.Context) {
	opts := h.sandbox.options()
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"timestamp":           time.Now(),
		"success_rate":        opts.SuccessRate,
		"duplicate_callbacks": opts.DuplicateCallbacks,
	})
}

// UpdateConfig changes behavior at runtime, e.g. to force failures in a
// demo without restarting.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req struct {
		SuccessRate        *float64 `json:"success_rate"`
		DuplicateCallbacks *int     `json:"duplicate_callbacks"`
		CallbackDelay      *string  `json:"callback_delay"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	var delay time.Duration
	if req.CallbackDelay != nil {
		d, err := time.ParseDuration(*req.CallbackDelay)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid callback_delay"})
			return
		}
		delay = d
	}

	s := h.sandbox
	s.mu.Lock()
	if req.SuccessRate != nil && *req.SuccessRate >= 0 && *req.SuccessRate <= 1 {
		s.opts.SuccessRate = *req.SuccessRate
	}
	if req.DuplicateCallbacks != nil && *req.DuplicateCallbacks >= 0 {
		s.opts.DuplicateCallbacks = *req.DuplicateCallbacks
	}
	if req.CallbackDelay != nil {
		s.opts.CallbackDelay = delay
	}
	opts := s.opts
	s.mu.Unlock()

	log.Info().Float64("success_rate", opts.SuccessRate).Int("duplicate_callbacks", opts.DuplicateCallbacks).Dur("callback_delay", opts.CallbackDelay).Msg("config updated")
	c.JSON(http.StatusOK, gin.H{
		"success_rate":        opts.SuccessRate,
		"duplicate_callbacks": opts.DuplicateCallbacks,
		"callback_delay":      opts.CallbackDelay.String(),
	})
}

func (s *Sandbox) scheduleDeliveryReport(messageID, number string) {
	opts := s.options()
	if opts.DeliveryReportURL == "" {
		return
	}
	time.AfterFunc(opts.DeliveryDelay, func() {
		form := url.Values{}
		form.Set("id", messageID)
		form.Set("phoneNumber", number)
		form.Set("networkCode", "63902")
		if s.succeed() {
			form.Set("status", "Success")
		} else {
			form.Set("status", "Failed")
			form.Set("failureReason", "DeliveryFailure")
		}
		s.post(opts.DeliveryReportURL, "application/x-www-form-urlencoded", []byte(form.Encode()), "delivery_report")
	})
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request processed")
	})

	router.GET("/oauth/v1/generate", handler.Token)
	router.POST("/mpesa/stkpush/v1/processrequest", handler.StkPush)
	router.POST("/mpesa/stkpushquery/v1/query", handler.StkQuery)
	router.POST("/version1/messaging", handler.SendSMS)

	router.GET("/health", handler.Health)
	router.PUT("/config", handler.UpdateConfig)

	return router
}
