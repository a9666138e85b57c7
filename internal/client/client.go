// Package client talks to the Tensorcraft server over HTTP.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/server"
	"github.com/cirruslabs/tensorcraft/internal/storage"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultServiceURL = "http://127.0.0.1:5678"

	// Any 1.x API will do
	acceptVersion = "~> 1.0"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

type Client struct {
	serviceURL     *url.URL
	httpClient     *http.Client
	tlsConfig      *tls.Config
	progressOutput io.Writer
}

func New(serviceURL string, opts ...Option) (*Client, error) {
	parsedServiceURL, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service URL %q: %w", serviceURL, err)
	}

	if parsedServiceURL.Scheme != "http" && parsedServiceURL.Scheme != "https" {
		return nil, fmt.Errorf("service URL %q should use either http or https scheme", serviceURL)
	}

	client := &Client{
		serviceURL: parsedServiceURL,
	}

	// Apply options
	for _, opt := range opts {
		opt(client)
	}

	// Apply defaults
	if client.httpClient == nil {
		client.httpClient = http.DefaultClient

		if client.tlsConfig != nil {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = client.tlsConfig

			client.httpClient = &http.Client{
				Transport: transport,
			}
		}
	}

	// Requesting TLS upgrades the plain HTTP service URL
	if client.tlsConfig != nil && client.serviceURL.Scheme == "http" {
		client.serviceURL.Scheme = "https"
	}

	return client, nil
}

// Push uploads the model artifact. The size is only used
// for reporting the progress and can be left zero.
func (client *Client) Push(ctx context.Context, key model.Key, r io.Reader, size int64) (model.Descriptor, error) {
	body, done := client.withProgress(key, r, size)
	defer done()

	request, err := client.newRequest(ctx, http.MethodPut, client.modelURL(key), body)
	if err != nil {
		return model.Descriptor{}, err
	}

	if size > 0 {
		request.ContentLength = size
	}

	request.Header.Set("Content-Type", "application/x-tar")

	var descriptor model.Descriptor

	if err := client.do(request, http.StatusCreated, &descriptor); err != nil {
		return model.Descriptor{}, fmt.Errorf("failed to push model %s: %w", key, err)
	}

	return descriptor, nil
}

// Export downloads the model artifact into w and verifies
// that it matches the checksum recorded on the server.
func (client *Client) Export(ctx context.Context, key model.Key, w io.Writer) (int64, error) {
	request, err := client.newRequest(ctx, http.MethodGet, client.modelURL(key), nil)
	if err != nil {
		return 0, err
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("failed to export model %s: %w", key, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to export model %s: %w", key, convertErr(response))
	}

	body, done := client.withProgress(key, response.Body, response.ContentLength)
	defer done()

	checksum, n, err := storage.Checksum(io.TeeReader(body, w))
	if err != nil {
		return n, fmt.Errorf("failed to export model %s: %w", key, err)
	}

	if expected := response.Header.Get(server.HeaderChecksum); expected != "" && expected != checksum {
		return n, fmt.Errorf("failed to export model %s: %w: expected %s, got %s",
			key, ErrChecksumMismatch, expected, checksum)
	}

	return n, nil
}

func (client *Client) Remove(ctx context.Context, key model.Key) error {
	request, err := client.newRequest(ctx, http.MethodDelete, client.modelURL(key), nil)
	if err != nil {
		return err
	}

	if err := client.do(request, http.StatusNoContent, nil); err != nil {
		return fmt.Errorf("failed to remove model %s: %w", key, err)
	}

	return nil
}

func (client *Client) List(ctx context.Context) ([]model.Descriptor, error) {
	request, err := client.newRequest(ctx, http.MethodGet, client.serviceURL.JoinPath("models"), nil)
	if err != nil {
		return nil, err
	}

	var descriptors []model.Descriptor

	if err := client.do(request, http.StatusOK, &descriptors); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	return descriptors, nil
}

func (client *Client) Status(ctx context.Context) (*server.StatusResponse, error) {
	request, err := client.newRequest(ctx, http.MethodGet, client.serviceURL.JoinPath("status"), nil)
	if err != nil {
		return nil, err
	}

	var status server.StatusResponse

	if err := client.do(request, http.StatusOK, &status); err != nil {
		return nil, fmt.Errorf("failed to retrieve server status: %w", err)
	}

	return &status, nil
}

func (client *Client) Predict(ctx context.Context, key model.Key, input map[string]any) (any, error) {
	requestBody, err := json.Marshal(&server.PredictRequest{
		Input: input,
	})
	if err != nil {
		return nil, err
	}

	request, err := client.newRequest(ctx, http.MethodPost, client.modelURL(key).JoinPath("predict"),
		bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}

	request.Header.Set("Content-Type", "application/json")

	var response server.PredictResponse

	if err := client.do(request, http.StatusOK, &response); err != nil {
		return nil, fmt.Errorf("failed to run model %s: %w", key, err)
	}

	return response.Output, nil
}

// withProgress wraps r to report the progress of the transfer when enabled,
// the returned function needs to be called once the transfer is over.
func (client *Client) withProgress(key model.Key, r io.Reader, size int64) (io.Reader, func()) {
	if client.progressOutput == nil || size <= 0 {
		return r, func() {}
	}

	progress := mpb.New(
		mpb.WithOutput(client.progressOutput),
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)

	bar := progress.AddBar(size,
		mpb.PrependDecorators(
			decor.Name(key.String(), decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)

	proxyReader := bar.ProxyReader(r)

	return proxyReader, func() {
		_ = proxyReader.Close()

		// Make sure Wait() returns even if the transfer was cut short
		if !bar.Completed() {
			bar.Abort(false)
		}

		progress.Wait()
	}
}

func (client *Client) modelURL(key model.Key) *url.URL {
	return client.serviceURL.JoinPath("models", url.PathEscape(key.Name), url.PathEscape(key.Tag))
}

func (client *Client) newRequest(
	ctx context.Context,
	method string,
	target *url.URL,
	body io.Reader,
) (*http.Request, error) {
	request, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	request.Header.Set("Accept-Version", acceptVersion)

	return request, nil
}

func (client *Client) do(request *http.Request, expectedStatusCode int, result any) error {
	response, err := client.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatusCode {
		return convertErr(response)
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(response.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode server response: %w", err)
	}

	return nil
}

// convertErr turns an error response into an error carrying
// the same kind as the error that occurred on the server.
func convertErr(response *http.Response) error {
	var errorResponse struct {
		Message string `json:"message"`
		Kind    string `json:"kind"`
	}

	message := fmt.Sprintf("unexpected HTTP %d", response.StatusCode)

	if err := json.NewDecoder(response.Body).Decode(&errorResponse); err == nil && errorResponse.Message != "" {
		message = errorResponse.Message
	}

	kind := kindFromResponse(response.StatusCode, errorResponse.Kind)
	if kind == nil {
		return errors.New(message)
	}

	return fmt.Errorf("%w: %s", kind, message)
}

func kindFromResponse(statusCode int, kindName string) error {
	for _, kind := range []error{
		model.ErrNotFound,
		model.ErrValidation,
		model.ErrModelFormat,
		model.ErrLoadTimeout,
		model.ErrResourceExhausted,
		model.ErrInference,
		model.ErrStorageIO,
	} {
		if kind.Error() == kindName {
			return kind
		}
	}

	switch statusCode {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusBadRequest:
		return model.ErrValidation
	default:
		return nil
	}
}
