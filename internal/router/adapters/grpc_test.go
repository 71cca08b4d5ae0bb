package adapters

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/types"
)

func mustEncode(t *testing.T, v any) []byte {
	t.Helper()
	msg, err := encodeMessage(v)
	require.NoError(t, err)
	return msg
}

func TestGRPCToJSON_Adapt(t *testing.T) {
	a := NewGRPCToJSON(config.AdapterConfig{})
	msg := mustEncode(t, map[string]any{"user": "john", "n": 2})

	got, err := a.Adapt(context.Background(), types.GRPCCall{Service: "users", Method: "Get", Message: msg}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "john", "n": float64(2)}, got)

	// JSON form of the call, as received over HTTP.
	wire := map[string]any{
		"service": "users",
		"method":  "Get",
		"message": base64.StdEncoding.EncodeToString(msg),
	}
	got, err = a.Adapt(context.Background(), wire, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "john", "n": float64(2)}, got)
}

func TestGRPCToJSON_AdaptErrors(t *testing.T) {
	a := NewGRPCToJSON(config.AdapterConfig{})

	_, err := a.Adapt(context.Background(), &types.GRPCCall{Service: "s"}, nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = a.Adapt(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedPayload)

	_, err = a.Adapt(context.Background(), map[string]any{"bogus": 1}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedPayload)

	_, err = a.Adapt(context.Background(), types.GRPCCall{Message: []byte{0xff, 0xff, 0xff}}, nil)
	assert.ErrorContains(t, err, "invalid protobuf message")
}

func TestGRPCToJSON_Reverse(t *testing.T) {
	a := NewGRPCToJSON(config.AdapterConfig{})

	got, err := a.Reverse(context.Background(), map[string]any{"ok": true}, nil)
	require.NoError(t, err)

	resp, ok := got.(types.GRPCResponse)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, map[string]any{"status": 0}, resp.Metadata)

	body, err := decodeMessage(resp.Response)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, body)
}

func TestHTTPToGRPC_Adapt(t *testing.T) {
	a := NewHTTPToGRPC(config.AdapterConfig{})

	tests := []struct {
		name        string
		req         any
		wantService string
		wantMethod  string
		wantBody    any
	}{
		{
			name:        "query string dropped",
			req:         types.HTTPRequest{Method: "get", Path: "/users/search?q=x"},
			wantService: "users",
			wantMethod:  "GETsearch",
			wantBody:    map[string]any{},
		},
		{
			name:        "nested path",
			req:         types.HTTPRequest{Method: "POST", Path: "/orders/items/create", Body: map[string]any{"id": 1}},
			wantService: "orders",
			wantMethod:  "POSTitemscreate",
			wantBody:    map[string]any{"id": float64(1)},
		},
		{
			name:        "service only",
			req:         map[string]any{"method": "DELETE", "path": "cart"},
			wantService: "cart",
			wantMethod:  "DELETE",
			wantBody:    map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Adapt(context.Background(), tt.req, nil)
			require.NoError(t, err)

			call, ok := got.(types.GRPCCall)
			require.True(t, ok, "got %T", got)
			assert.Equal(t, tt.wantService, call.Service)
			assert.Equal(t, tt.wantMethod, call.Method)
			assert.Nil(t, call.Metadata)

			body, err := decodeMessage(call.Message)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestHTTPToGRPC_AdaptErrors(t *testing.T) {
	a := NewHTTPToGRPC(config.AdapterConfig{})

	for _, path := range []string{"", "/", "?q=1"} {
		_, err := a.Adapt(context.Background(), types.HTTPRequest{Method: "GET", Path: path}, nil)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", path)
	}

	_, err := a.Adapt(context.Background(), types.HTTPRequest{Path: "/a"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedPayload)
}

func TestHTTPToGRPC_AdaptPreservesHeaders(t *testing.T) {
	a := NewHTTPToGRPC(config.AdapterConfig{})
	req := types.HTTPRequest{Method: "GET", Path: "/a", Headers: map[string]string{"X-Trace": "abc"}}

	got, err := a.Adapt(context.Background(), req, &types.AdapterContext{PreserveMetadata: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x-trace": "abc"}, got.(types.GRPCCall).Metadata)
}

func TestHTTPToGRPC_Reverse(t *testing.T) {
	a := NewHTTPToGRPC(config.AdapterConfig{})
	resp := types.GRPCResponse{
		Response: mustEncode(t, map[string]any{"name": "x"}),
		Metadata: map[string]any{"status": 5, "region": "eu"},
	}

	got, err := a.Reverse(context.Background(), resp, nil)
	require.NoError(t, err)

	out, ok := got.(types.HTTPResponse)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, http.StatusNotFound, out.Status)
	assert.Equal(t, map[string]any{"name": "x"}, out.Body)
	assert.Equal(t, map[string]string{"x-grpc-status": "5", "x-grpc-region": "eu"}, out.Headers)
}

func TestHTTPToGRPC_ReverseInvalidMessage(t *testing.T) {
	a := NewHTTPToGRPC(config.AdapterConfig{})
	resp := types.GRPCResponse{Response: []byte{0xff, 0xff, 0xff}, Metadata: map[string]any{"status": 0}}

	_, err := a.Reverse(context.Background(), resp, nil)
	assert.ErrorContains(t, err, "invalid protobuf message")
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		md   map[string]any
		want codes.Code
	}{
		{"int", map[string]any{"status": 0}, codes.OK},
		{"float from json", map[string]any{"status": float64(7)}, codes.PermissionDenied},
		{"numeric string", map[string]any{"status": "4"}, codes.DeadlineExceeded},
		{"name", map[string]any{"status": "not_found"}, codes.NotFound},
		{"missing", map[string]any{}, codes.Unknown},
		{"nil metadata", nil, codes.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusCode(tt.md))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.OK, 200},
		{codes.Canceled, 499},
		{codes.Unknown, 500},
		{codes.InvalidArgument, 400},
		{codes.DeadlineExceeded, 504},
		{codes.NotFound, 404},
		{codes.AlreadyExists, 409},
		{codes.PermissionDenied, 403},
		{codes.Unauthenticated, 401},
		{codes.Unavailable, 503},
		{codes.Code(99), 500},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

func TestHTTPThroughGRPCToJSON(t *testing.T) {
	ctx := context.Background()
	httpGRPC := NewHTTPToGRPC(config.AdapterConfig{})
	grpcJSON := NewGRPCToJSON(config.AdapterConfig{})

	call, err := httpGRPC.Adapt(ctx, types.HTTPRequest{Method: "POST", Path: "/users", Body: map[string]any{"name": "x"}}, nil)
	require.NoError(t, err)
	value, err := grpcJSON.Adapt(ctx, call, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "x"}, value)

	resp, err := grpcJSON.Reverse(ctx, value, nil)
	require.NoError(t, err)
	out, err := httpGRPC.Reverse(ctx, resp, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.(types.HTTPResponse).Status)
	assert.Equal(t, map[string]any{"name": "x"}, out.(types.HTTPResponse).Body)
}
