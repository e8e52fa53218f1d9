package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/apperr"
)

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func errorBody(kind apperr.Kind, message string) gin.H {
	return gin.H{"error": errorPayload{Kind: string(kind), Message: message}}
}

// respondError renders err with the status of its kind. Internal causes are
// logged, never sent to the client.
func (s *Server) respondError(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.NewInternal("request", err)
	}
	_ = c.Error(err)

	switch appErr.Kind {
	case apperr.KindInternal:
		s.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(appErr.HTTPStatus(), errorBody(appErr.Kind, "internal error"))
		return
	case apperr.KindTransient:
		s.logger.Warn("backend unavailable", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(appErr.HTTPStatus(), errorBody(appErr.Kind, appErr.Message))
}

func (s *Server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, apperr.NewValidation("invalid request body: %v", err))
		return false
	}
	return true
}
