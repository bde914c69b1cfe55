package server

import (
	"net/http"
	"time"

	"github.com/berfenger/battseq/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type targetRequest struct {
	Target string `json:"target"`
}

type targetResponse struct {
	Target  string `json:"target"`
	Changed bool   `json:"changed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.JSONSerializer = goJSONSerializer{}
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.PUT("/target", s.SetTargetHandler)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetSequencerStatusRequest{}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetSequencerStatusResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, response.Status)
}

func (s *Server) SetTargetHandler(c echo.Context) error {
	var req targetRequest
	if err := c.Bind(&req); err != nil || req.Target == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	target, err := domain.ParseStartStop(req.Target)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetStartStopTargetRequest{Target: target}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.SetStartStopTargetResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, targetResponse{
		Target:  response.Target.String(),
		Changed: response.Changed,
	})
}
