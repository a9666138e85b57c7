package s3

import (
	"context"
	s3pkg "github.com/aws/aws-sdk-go-v2/service/s3"
	transport "github.com/aws/smithy-go/endpoints"
	"net/url"
)

// staticEndpointResolver points the client at a fixed S3-compatible
// endpoint, such as MinIO or LocalStack.
type staticEndpointResolver struct {
	url *url.URL
}

func (e *staticEndpointResolver) ResolveEndpoint(
	_ context.Context,
	_ s3pkg.EndpointParameters,
) (transport.Endpoint, error) {
	return transport.Endpoint{
		URI: *e.url,
	}, nil
}
