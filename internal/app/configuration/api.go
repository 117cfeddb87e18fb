package configuration

import (
	"fmt"
	"net/http"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-engine/internal/app/mockserver"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type adminAPI struct {
	options []mockserver.Option
}

// NewAdminAPI returns the API starting and stopping mock servers from contract
// files. Every mock server it starts gets options.
func NewAdminAPI(options ...mockserver.Option) *echo.Echo {
	api := &adminAPI{options: options}

	adminServer := echo.New()
	adminServer.HideBanner = true
	adminServer.Use(middleware.Recover())

	adminServer.GET("/mocks", api.getMocksHandler)
	adminServer.DELETE("/mocks", api.deleteMocksHandler)
	adminServer.POST("/mocks", api.postMocksHandler)
	return adminServer
}

func ServeAdminAPI(port int, options ...mockserver.Option) *echo.Echo {
	adminServer := NewAdminAPI(options...)

	go func() {
		address := fmt.Sprintf(":%d", port)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func (a *adminAPI) getMocksHandler(c echo.Context) error {
	mocks := Mocks()
	if mocks == nil {
		mocks = []MockStatus{}
	}
	return c.JSON(http.StatusOK, mocks)
}

func (a *adminAPI) deleteMocksHandler(c echo.Context) error {
	log.Infof("closing all mock servers")
	ShutdownAllServers(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func (a *adminAPI) postMocksHandler(c echo.Context) error {
	mockConfig := MockConfig{}
	if err := c.Bind(&mockConfig); err != nil {
		return c.JSON(
			http.StatusBadRequest,
			httpresponse.Errorf("unable to parse mock configuration from data. %s", err.Error()),
		)
	}
	if mockConfig.PactFile == "" || mockConfig.Address == "" {
		return c.JSON(http.StatusBadRequest, httpresponse.Error("pactFile and address are required"))
	}

	log.Infof("setting up mock server for %s on %s", mockConfig.PactFile, mockConfig.Address)

	status, err := StartMock(mockConfig, a.options...)
	if err != nil {
		return c.JSON(statusFor(err), httpresponse.Errorf("unable to start mock server. %s", err.Error()))
	}
	return c.JSON(http.StatusCreated, status)
}

func statusFor(err error) int {
	var inUse *mockserver.AddressInUseError
	var format *contract.ArtifactFormatError
	switch {
	case errors.As(err, &inUse):
		return http.StatusConflict
	case errors.As(err, &format):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
