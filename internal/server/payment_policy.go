package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
)

func (s *Server) GetPaymentPolicy(c *gin.Context) {
	policy, err := s.policySvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": policy})
}

func (s *Server) UpdatePaymentPolicy(c *gin.Context) {
	var req paymentpolicydomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	policy, err := s.policySvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": policy})
}
