package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/archive/archivetest"
	"github.com/cirruslabs/tensorcraft/internal/cache"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/server"
	"github.com/cirruslabs/tensorcraft/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestScenario(t *testing.T) {
	baseURL := startServer(t, testutil.Cache(t))

	modelURL := baseURL + "/models/resnet/v1"

	// Push
	request, err := http.NewRequest(http.MethodPut, modelURL,
		bytes.NewReader(archivetest.Model(t, "resnet", "x * 2", "x")))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, strings.HasPrefix(resp.Header.Get("Server"), "Tensorcraft/"))

	var descriptor model.Descriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&descriptor))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, model.Key{Name: "resnet", Tag: "v1"}, descriptor.Key)
	require.NotEmpty(t, descriptor.Checksum)

	// List
	resp, err = http.Get(baseURL + "/models")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var descriptors []model.Descriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&descriptors))
	require.NoError(t, resp.Body.Close())
	require.Len(t, descriptors, 1)
	require.Equal(t, "resnet", descriptors[0].Name)
	require.Equal(t, "v1", descriptors[0].Tag)

	// Predict
	resp, err = http.Post(modelURL+"/predict", "application/json",
		strings.NewReader(`{"input": {"x": 21}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var predictResponse server.PredictResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&predictResponse))
	require.NoError(t, resp.Body.Close())
	require.EqualValues(t, 42, predictResponse.Output)

	// Remove
	request, err = http.NewRequest(http.MethodDelete, modelURL, nil)
	require.NoError(t, err)

	resp, err = http.DefaultClient.Do(request)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// Predict again
	resp, err = http.Post(modelURL+"/predict", "application/json",
		strings.NewReader(`{"input": {"x": 21}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// Status
	resp, err = http.Get(baseURL + "/status")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var statusResponse server.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&statusResponse))
	require.NoError(t, resp.Body.Close())
	require.Equal(t, "running", statusResponse.Status)
	require.Equal(t, cache.Status{}, statusResponse.Models)
}

func TestListEmpty(t *testing.T) {
	baseURL := startServer(t, testutil.Cache(t))

	resp, err := http.Get(baseURL + "/models")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.JSONEq(t, "[]", string(body))
}

func TestStatusCodes(t *testing.T) {
	testCases := []struct {
		err    error
		status int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrModelFormat, http.StatusUnprocessableEntity},
		{model.ErrLoadTimeout, http.StatusGatewayTimeout},
		{model.ErrResourceExhausted, http.StatusServiceUnavailable},
		{model.ErrInference, http.StatusInternalServerError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.err.Error(), func(t *testing.T) {
			baseURL := startServer(t, &failingModels{err: fmt.Errorf("failed: %w", testCase.err)})

			resp, err := http.Post(baseURL+"/models/name/tag/predict", "application/json", nil)
			require.NoError(t, err)
			require.Equal(t, testCase.status, resp.StatusCode)

			var body struct {
				Message string `json:"message"`
				Kind    string `json:"kind"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.NoError(t, resp.Body.Close())
			require.Equal(t, testCase.err.Error(), body.Kind)
			require.Contains(t, body.Message, testCase.err.Error())
		})
	}
}

func TestPushInvalidArchive(t *testing.T) {
	baseURL := startServer(t, testutil.Cache(t))

	request, err := http.NewRequest(http.MethodPut, baseURL+"/models/broken/v1",
		strings.NewReader("not a tar archive"))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestPredictErrors(t *testing.T) {
	models := testutil.Cache(t)
	baseURL := startServer(t, models)

	key := model.Key{Name: uuid.NewString(), Tag: "v1"}

	_, err := models.Push(context.Background(), key, bytes.NewReader(archivetest.Model(t, "sum", "a + b", "a", "b")))
	require.NoError(t, err)

	predictURL := fmt.Sprintf("%s/models/%s/%s/predict", baseURL, key.Name, key.Tag)

	// Malformed JSON
	resp, err := http.Post(predictURL, "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// Missing input
	resp, err = http.Post(predictURL, "application/json", strings.NewReader(`{"input": {"a": 1}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// Model still works afterwards
	resp, err = http.Post(predictURL, "application/json", strings.NewReader(`{"input": {"a": 1, "b": 2}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestAcceptVersion(t *testing.T) {
	baseURL := startServer(t, testutil.Cache(t))

	testCases := []struct {
		acceptVersion string
		status        int
	}{
		{"", http.StatusOK},
		{"~> 1.0", http.StatusOK},
		{">= 1.0, < 2.0", http.StatusOK},
		{"~> 2.0", http.StatusNotAcceptable},
		{"not a version", http.StatusBadRequest},
	}

	for _, testCase := range testCases {
		request, err := http.NewRequest(http.MethodGet, baseURL+"/status", nil)
		require.NoError(t, err)

		if testCase.acceptVersion != "" {
			request.Header.Set("Accept-Version", testCase.acceptVersion)
		}

		resp, err := http.DefaultClient.Do(request)
		require.NoError(t, err)
		require.Equal(t, testCase.status, resp.StatusCode, testCase.acceptVersion)
		require.NoError(t, resp.Body.Close())
	}
}

func TestMetrics(t *testing.T) {
	baseURL := startServer(t, testutil.Cache(t))

	resp, err := http.Get(baseURL + "/status")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	// Requests are accounted right after the response is sent
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}

		return strings.Contains(string(body),
			`tensorcraft_http_requests_total{method="GET",route="/status",status="200"} 1`)
	}, 5*time.Second, 50*time.Millisecond)
}

func startServer(t *testing.T, models server.Models) string {
	t.Helper()

	tensorcraftServer, err := server.New("127.0.0.1:0", models)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- tensorcraftServer.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	return "http://" + tensorcraftServer.Addr()
}

type failingModels struct {
	err error
}

func (models *failingModels) Predict(context.Context, model.Key, map[string]any) (any, error) {
	return nil, models.err
}

func (models *failingModels) Push(context.Context, model.Key, io.Reader) (model.Descriptor, error) {
	return model.Descriptor{}, models.err
}

func (models *failingModels) Remove(context.Context, model.Key) error {
	return models.err
}

func (models *failingModels) Export(context.Context, model.Key) (model.Descriptor, io.ReadCloser, error) {
	return model.Descriptor{}, nil, models.err
}

func (models *failingModels) List(context.Context) ([]model.Descriptor, error) {
	return nil, models.err
}

func (models *failingModels) Status() cache.Status {
	return cache.Status{}
}
