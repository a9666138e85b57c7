package server

import (
	"github.com/cirruslabs/tensorcraft/internal/cache"
	"github.com/cirruslabs/tensorcraft/internal/version"
	"github.com/labstack/echo/v4"
	"net/http"
)

type StatusResponse struct {
	Status     string       `json:"status"`
	Version    string       `json:"version"`
	APIVersion string       `json:"api_version"`
	Models     cache.Status `json:"models"`
}

func (server *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, &StatusResponse{
		Status:     "running",
		Version:    version.FullVersion,
		APIVersion: version.APIVersion,
		Models:     server.models.Status(),
	})
}
