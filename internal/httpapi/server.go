// Package httpapi exposes the currency service over HTTP. One route per
// facade operation, mirroring the public API surface consumed by the
// frontend and mobile clients.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"ratewatcher/internal/auth"
	"ratewatcher/internal/market"
	"ratewatcher/internal/service"
)

// Server wires the facade into a gin router.
type Server struct {
	svc      *service.Service
	verifier auth.Verifier
	logger   zerolog.Logger
}

// NewServer constructs the HTTP server.
func NewServer(svc *service.Service, verifier auth.Verifier, logger zerolog.Logger) *Server {
	return &Server{
		svc:      svc,
		verifier: verifier,
		logger:   logger.With().Str("component", "httpapi").Logger(),
	}
}

// Router builds the route table.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := r.Group("/currency")
	group.GET("", s.listCurrencies)
	group.GET("/:code", s.optionalUser(), s.getCurrency)

	group.POST("/:code/predict-increase", s.requireUser(), s.predict(market.PredictIncrease))
	group.POST("/:code/predict-decrease", s.requireUser(), s.predict(market.PredictDecrease))
	group.POST("/:code/clear-prediction", s.requireUser(), s.clearPrediction)

	group.GET("/:code/intraday", s.window(market.WindowIntraday))
	group.GET("/:code/last-week", s.window(market.WindowLastWeek))
	group.GET("/:code/last-month", s.window(market.WindowLastMonth))
	group.GET("/:code/last-100", s.window(market.WindowLast100))
	group.GET("/:code/full", s.window(market.WindowFull))

	group.POST("/:code/alert", s.requireUser(), s.saveAlert)
	group.DELETE("/:code/alert/delete/:id", s.requireUser(), s.deleteAlert)

	return r
}

func (s *Server) listCurrencies(c *gin.Context) {
	quotes, err := s.svc.GetAll(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, quotes)
}

func (s *Server) getCurrency(c *gin.Context) {
	detail, err := s.svc.Get(c.Request.Context(), c.Param("code"), callerID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) predict(direction market.PredictionDirection) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.svc.Predict(c.Request.Context(), c.Param("code"), callerID(c), direction); err != nil {
			s.writeError(c, err)
			return
		}
		c.Status(http.StatusOK)
	}
}

func (s *Server) clearPrediction(c *gin.Context) {
	if err := s.svc.ClearPrediction(c.Request.Context(), c.Param("code"), callerID(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) window(policy market.WindowPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticks, err := s.svc.Window(c.Request.Context(), c.Param("code"), policy)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, ticks)
	}
}

type saveAlertRequest struct {
	Direction string          `json:"direction"`
	Rate      decimal.Decimal `json:"rate"`
}

func (s *Server) saveAlert(c *gin.Context) {
	var req saveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, market.ErrInvalidAlert)
		return
	}

	var direction market.AlertDirection
	switch req.Direction {
	case string(market.AlertAbove):
		direction = market.AlertAbove
	case string(market.AlertBelow):
		direction = market.AlertBelow
	default:
		s.writeError(c, market.ErrInvalidAlert)
		return
	}

	alert, err := s.svc.SaveAlert(c.Request.Context(), c.Param("code"), callerID(c), direction, req.Rate)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) deleteAlert(c *gin.Context) {
	err := s.svc.DeleteAlert(c.Request.Context(), c.Param("code"), callerID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// writeError maps typed validation faults to 400 and everything else to an
// opaque 500, so clients never see internal detail.
func (s *Server) writeError(c *gin.Context, err error) {
	var fault *market.Fault
	if errors.As(err, &fault) && fault != market.ErrNoData {
		c.JSON(http.StatusBadRequest, fault)
		return
	}

	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, market.Fault{
		Name:    "InternalError",
		Message: "internal error",
	})
}
