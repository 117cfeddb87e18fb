package mockserver

import (
	"io"
	"net/http"
	"strconv"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/httpresponse"
	"github.com/labstack/echo/v4"
)

// InteractionStatus is an interaction as listed by the control API.
type InteractionStatus struct {
	Interaction  contract.Interaction `json:"interaction"`
	RequestCount int                  `json:"request_count"`
}

func (s *Server) controlAPI() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/ready", s.readinessHandler)
	e.GET("/interactions", s.interactionsHandler)
	e.GET("/interactions/verification", s.verificationHandler)
	e.GET("/interactions/wait", s.interactionsWaitHandler)
	e.POST("/interactions/modifiers", s.interactionsModifiersHandler)
	return e
}

func (s *Server) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) interactionsHandler(c echo.Context) error {
	all := s.interactions.All()
	statuses := make([]InteractionStatus, 0, len(all))
	for _, r := range all {
		statuses = append(statuses, InteractionStatus{Interaction: r.interaction, RequestCount: r.RequestCount()})
	}
	return c.JSON(http.StatusOK, statuses)
}

func (s *Server) verificationHandler(c echo.Context) error {
	report := s.Report()
	if report.Failed() {
		return c.JSON(http.StatusInternalServerError, report)
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) interactionsWaitHandler(c echo.Context) error {
	ctx := c.Request().Context()
	count, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil || count < 1 {
		count = 1
	}

	if waitFor := c.QueryParam("interaction"); waitFor != "" {
		s.log.WithField("wait_for", waitFor).Info("waiting")
		met, err := s.WaitFor(ctx, waitFor, count)
		if err != nil {
			return c.JSON(http.StatusBadRequest, httpresponse.Errorf("cannot wait for interaction '%s', interaction not found.", waitFor))
		}
		if !met {
			return c.JSON(http.StatusRequestTimeout, httpresponse.Error("timeout waiting for interactions to be met"))
		}
		return c.NoContent(http.StatusOK)
	}

	s.log.Info("waiting for all")
	if !s.WaitForAll(ctx) {
		for _, id := range s.interactions.Unused() {
			s.log.WithField("interaction", id.Description).Info("interaction has no requests")
		}
		return c.JSON(http.StatusRequestTimeout, httpresponse.Error("timeout waiting for interactions to be met"))
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) interactionsModifiersHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read modifier. %s", err.Error()))
	}

	modifier, err := loadModifier(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load modifier. %s", err.Error()))
	}

	if err := s.AddModifier(modifier); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}
