package adapters

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/types"
)

const grpcHeaderPrefix = "x-grpc-"

// HTTPToGRPC maps REST-style requests onto gRPC calls and gRPC responses back
// onto HTTP responses.
//
// Adapt takes a types.HTTPRequest. The first path segment names the service;
// the method is the HTTP verb followed by the remaining segments, so
// GET /users/search becomes users.GETsearch. The query string is ignored and
// a nil body is sent as {}.
//
// Reverse takes a types.GRPCResponse and returns a types.HTTPResponse whose
// status follows the canonical gRPC to HTTP mapping.
type HTTPToGRPC struct {
	edge
}

func NewHTTPToGRPC(cfg config.AdapterConfig) *HTTPToGRPC {
	return &HTTPToGRPC{edge: newEdge(HTTP, GRPC, 0.8, cfg)}
}

func (a *HTTPToGRPC) Adapt(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	req, err := decodePayload[types.HTTPRequest](data, actx)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		return nil, fmt.Errorf("%w: missing http method", ErrUnsupportedPayload)
	}
	service, rest, err := splitPath(req.Path)
	if err != nil {
		return nil, err
	}

	body := req.Body
	if body == nil {
		body = map[string]any{}
	}
	msg, err := encodeMessage(body)
	if err != nil {
		return nil, err
	}

	call := types.GRPCCall{
		Service: service,
		Method:  method + strings.Join(rest, ""),
		Message: msg,
	}
	if actx != nil && actx.PreserveMetadata && len(req.Headers) > 0 {
		call.Metadata = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			call.Metadata[strings.ToLower(k)] = v
		}
	}
	return applyHandler(actx, "http-grpc", call)
}

func (a *HTTPToGRPC) Reverse(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	resp, err := decodePayload[types.GRPCResponse](data, actx)
	if err != nil {
		return nil, err
	}

	var body any
	if len(resp.Response) > 0 {
		body, err = decodeMessage(resp.Response)
		if err != nil {
			return nil, err
		}
	}

	out := types.HTTPResponse{
		Status:  HTTPStatus(statusCode(resp.Metadata)),
		Body:    body,
		Headers: make(map[string]string, len(resp.Metadata)),
	}
	for k, v := range resp.Metadata {
		out.Headers[grpcHeaderPrefix+k] = scalarText(v)
	}
	return applyHandler(actx, "http-grpc.reverse", out)
}

// splitPath returns the first segment of the path and the remaining segments.
func splitPath(path string) (string, []string, error) {
	path, _, _ = strings.Cut(path, "?")
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: %q has no service segment", ErrInvalidPath, path)
	}
	return parts[0], parts[1:], nil
}

// statusCode reads the gRPC status from response metadata. A missing or
// unparseable status is treated as Unknown.
func statusCode(md map[string]any) codes.Code {
	switch v := md["status"].(type) {
	case codes.Code:
		return v
	case int:
		return codes.Code(uint32(v))
	case int32:
		return codes.Code(uint32(v))
	case int64:
		return codes.Code(uint32(v))
	case uint32:
		return codes.Code(v)
	case float64:
		return codes.Code(uint32(v))
	case string:
		var c codes.Code
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return codes.Code(uint32(n))
		}
		if err := c.UnmarshalJSON([]byte(strconv.Quote(strings.ToUpper(v)))); err == nil {
			return c
		}
	}
	return codes.Unknown
}

// HTTPStatus maps a gRPC status code to the HTTP status a gateway would
// return for it.
func HTTPStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
