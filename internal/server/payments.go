package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/tugas/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
)

type verifyPaymentRequest struct {
	Network              string `json:"network"`
	TransactionReference string `json:"transaction_reference"`
	SenderAddress        string `json:"sender_address"`
	ExpectedAmount       string `json:"expected_amount"`
	ContentID            string `json:"content_id"`
}

type verifyPaymentResponse struct {
	Verified          bool                 `json:"verified"`
	Reason            string               `json:"reason,omitempty"`
	Message           string               `json:"message,omitempty"`
	Retryable         bool                 `json:"retryable"`
	RetryAfterSeconds int                  `json:"retry_after_seconds,omitempty"`
	Amount            string               `json:"amount,omitempty"`
	Confirmations     uint64               `json:"confirmations,omitempty"`
	PaymentID         *snowflake.ID        `json:"payment_id,omitempty"`
	Status            paymentdomain.Status `json:"status,omitempty"`
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	outcome, err := s.paymentSvc.Verify(c.Request.Context(), paymentdomain.VerifyRequest{
		Network:              strings.TrimSpace(req.Network),
		TransactionReference: strings.TrimSpace(req.TransactionReference),
		SenderAddress:        strings.TrimSpace(req.SenderAddress),
		ExpectedAmount:       strings.TrimSpace(req.ExpectedAmount),
		ContentID:            strings.TrimSpace(req.ContentID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status, resp := verifyResponse(outcome)
	if outcome.Reason != "" {
		c.Set(obslogger.ContextKeyVerificationReason, string(outcome.Reason))
	}
	if resp.RetryAfterSeconds > 0 {
		c.Header("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	c.JSON(status, resp)
}

func verifyResponse(outcome *paymentdomain.Outcome) (int, verifyPaymentResponse) {
	resp := verifyPaymentResponse{
		Verified:      outcome.Verified,
		Amount:        outcome.Amount,
		Confirmations: outcome.Confirmations,
	}
	if outcome.Record != nil {
		id := outcome.Record.ID
		resp.PaymentID = &id
		resp.Status = outcome.Record.Status
	}
	if outcome.Verified {
		return http.StatusOK, resp
	}

	resp.Reason = string(outcome.Reason)
	resp.Message = outcome.Reason.Message()
	resp.Retryable = outcome.Reason.Retryable()
	if resp.Retryable {
		resp.RetryAfterSeconds = retryAfterSeconds(outcome.RetryAfter)
	}
	return verifyStatus(outcome.Reason), resp
}

func verifyStatus(reason paymentdomain.Reason) int {
	switch reason {
	case paymentdomain.ReasonInvalidFormat:
		return http.StatusBadRequest
	case paymentdomain.ReasonTransactionAlreadyUsed:
		return http.StatusConflict
	case paymentdomain.ReasonWrongRecipient,
		paymentdomain.ReasonSenderMismatch,
		paymentdomain.ReasonInsufficientAmount,
		paymentdomain.ReasonTransactionFailed:
		return http.StatusUnprocessableEntity
	case paymentdomain.ReasonInsufficientConfirmations:
		return http.StatusAccepted
	case paymentdomain.ReasonNotFound:
		return http.StatusNotFound
	case paymentdomain.ReasonTransientError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) GetEntitlement(c *gin.Context) {
	contentID := strings.TrimSpace(c.Param("content_id"))
	if contentID == "" {
		AbortWithError(c, paymentdomain.ErrInvalidContent)
		return
	}

	status, err := s.paymentSvc.GetEntitlement(c.Request.Context(), contentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

type listPaymentRecordsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	PayerID   string `form:"payer_id"`
	ContentID string `form:"content_id"`
}

func (s *Server) ListPaymentRecords(c *gin.Context) {
	var query listPaymentRecordsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := paymentdomain.ListRecordsRequest{
		Status:    strings.TrimSpace(query.Status),
		PayerID:   strings.TrimSpace(query.PayerID),
		ContentID: strings.TrimSpace(query.ContentID),
	}
	req.PageToken = strings.TrimSpace(query.PageToken)
	req.PageSize = query.PageSize

	resp, err := s.paymentSvc.ListRecords(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Records, "page_info": resp.PageInfo})
}
