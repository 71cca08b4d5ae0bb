package adapters

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/types"
)

// GRPCToJSON decodes gRPC messages carrying a google.protobuf.Value into
// generic JSON values and encodes JSON values back into gRPC responses.
//
// Adapt takes a types.GRPCCall and returns its decoded message. Reverse takes
// any JSON value and returns a types.GRPCResponse with status OK.
type GRPCToJSON struct {
	edge
}

func NewGRPCToJSON(cfg config.AdapterConfig) *GRPCToJSON {
	return &GRPCToJSON{edge: newEdge(GRPC, JSON, 0.85, cfg)}
}

func (a *GRPCToJSON) Adapt(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	call, err := decodePayload[types.GRPCCall](data, actx)
	if err != nil {
		return nil, err
	}
	value, err := decodeMessage(call.Message)
	if err != nil {
		return nil, err
	}
	return applyHandler(actx, "grpc-json", value)
}

func (a *GRPCToJSON) Reverse(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	msg, err := encodeMessage(data)
	if err != nil {
		return nil, err
	}
	resp := types.GRPCResponse{
		Response: msg,
		Metadata: map[string]any{"status": int(codes.OK)},
	}
	return applyHandler(actx, "grpc-json.reverse", resp)
}

// encodeMessage marshals a JSON value as a google.protobuf.Value.
func encodeMessage(data any) ([]byte, error) {
	value, err := normalizeJSON(data)
	if err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	msg, err := proto.Marshal(pv)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf message: %w", err)
	}
	return msg, nil
}

func decodeMessage(msg []byte) (any, error) {
	if len(msg) == 0 {
		return nil, ErrEmptyMessage
	}
	var pv structpb.Value
	if err := proto.Unmarshal(msg, &pv); err != nil {
		return nil, fmt.Errorf("invalid protobuf message: %w", err)
	}
	return pv.AsInterface(), nil
}
