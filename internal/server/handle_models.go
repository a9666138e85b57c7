package server

import (
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/server/fail"
	"github.com/go-chi/render"
	"github.com/labstack/echo/v4"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

type PredictRequest struct {
	Input map[string]any `json:"input"`
}

type PredictResponse struct {
	Output any `json:"output"`
}

func (server *Server) handlePush(c echo.Context) error {
	key, err := keyFromPath(c)
	if err != nil {
		return fail.Error(c, err)
	}

	descriptor, err := server.models.Push(c.Request().Context(), key, c.Request().Body)
	if err != nil {
		return fail.Error(c, err)
	}

	server.pushedBytes.Observe(float64(descriptor.Size))

	return c.JSON(http.StatusCreated, &descriptor)
}

func (server *Server) handleRemove(c echo.Context) error {
	key, err := keyFromPath(c)
	if err != nil {
		return fail.Error(c, err)
	}

	if err := server.models.Remove(c.Request().Context(), key); err != nil {
		return fail.Error(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (server *Server) handleExport(c echo.Context) error {
	key, err := keyFromPath(c)
	if err != nil {
		return fail.Error(c, err)
	}

	descriptor, artifact, err := server.models.Export(c.Request().Context(), key)
	if err != nil {
		return fail.Error(c, err)
	}
	defer artifact.Close()

	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(descriptor.Size, 10))
	c.Response().Header().Set(HeaderChecksum, descriptor.Checksum)

	return c.Stream(http.StatusOK, "application/x-tar", artifact)
}

func (server *Server) handlePredict(c echo.Context) error {
	key, err := keyFromPath(c)
	if err != nil {
		return fail.Error(c, err)
	}

	var request PredictRequest

	// An empty body is the same as no inputs
	if err := render.DecodeJSON(c.Request().Body, &request); err != nil && !errors.Is(err, io.EOF) {
		return fail.Fail(c, http.StatusBadRequest, "failed to read/decode the JSON "+
			"passed to the predict endpoint: %v", err)
	}

	output, err := server.models.Predict(c.Request().Context(), key, request.Input)
	if err != nil {
		return fail.Error(c, err)
	}

	return c.JSON(http.StatusOK, &PredictResponse{
		Output: output,
	})
}

func (server *Server) handleList(c echo.Context) error {
	descriptors, err := server.models.List(c.Request().Context())
	if err != nil {
		return fail.Error(c, err)
	}

	// Render an empty list as [] and not as null
	if descriptors == nil {
		descriptors = []model.Descriptor{}
	}

	return c.JSON(http.StatusOK, descriptors)
}

func keyFromPath(c echo.Context) (model.Key, error) {
	name, err := pathParam(c, "name")
	if err != nil {
		return model.Key{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	tag, err := pathParam(c, "tag")
	if err != nil {
		return model.Key{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	key, err := model.NewKey(name, tag)
	if err != nil {
		return model.Key{}, fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	return key, nil
}

// pathParam returns the decoded path parameter. Echo routes on the raw path
// only when it differs from the decoded one (e.g. for an escaped slash),
// and only then are the parameters still escaped.
func pathParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)

	if c.Request().URL.RawPath == "" {
		return value, nil
	}

	return url.PathUnescape(value)
}
