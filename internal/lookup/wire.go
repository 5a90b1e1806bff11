package lookup

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * gRPC wire contract for the remote lookup service.
 *
 * The service has a single unary method:
 *
 *   editcheck.lookup.v1.LookupService/Exists(Struct) returns (Struct)
 *
 * Requests and responses are google.protobuf.Struct so no generated code is
 * needed on either side:
 *
 *   request:  {"kind": "geography", "year": 2017, "keys": {"msa": "...", ...}}
 *   response: {"exists": true}
 */

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "editcheck.lookup.v1.LookupService"

	// ExistsMethod is the full method path used by clients and interceptors.
	ExistsMethod = "/" + ServiceName + "/Exists"
)

// LookupServer is the server-side handler for the lookup service.
type LookupServer interface {
	Exists(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the lookup service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exists", Handler: existsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "editcheck/lookup/v1/lookup.proto",
}

// RegisterLookupServer attaches srv to s.
func RegisterLookupServer(s grpc.ServiceRegistrar, srv LookupServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func existsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LookupServer).Exists(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExistsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LookupServer).Exists(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// EncodeQuery converts q to its wire form.
func EncodeQuery(q Query) (*structpb.Struct, error) {
	keys := make(map[string]any, len(q.Keys))
	for k, v := range q.Keys {
		keys[k] = v
	}
	s, err := structpb.NewStruct(map[string]any{
		"kind": string(q.Kind),
		"year": q.Year,
		"keys": keys,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode lookup query: %w", err)
	}
	return s, nil
}

// DecodeQuery parses and validates a wire request.
func DecodeQuery(s *structpb.Struct) (Query, error) {
	fields := s.GetFields()
	q := Query{
		Kind: Kind(fields["kind"].GetStringValue()),
		Year: int(fields["year"].GetNumberValue()),
		Keys: make(map[string]string),
	}
	for k, v := range fields["keys"].GetStructValue().GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return Query{}, fmt.Errorf("%w: key %q must be a string", ErrInvalidQuery, k)
		}
		q.Keys[k] = sv.StringValue
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// EncodeAnswer builds the wire response.
func EncodeAnswer(exists bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"exists": structpb.NewBoolValue(exists),
	}}
}

// DecodeAnswer reads the wire response.
func DecodeAnswer(s *structpb.Struct) (bool, error) {
	v, ok := s.GetFields()["exists"]
	if !ok {
		return false, fmt.Errorf("lookup response missing \"exists\"")
	}
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("lookup response \"exists\" must be a bool")
	}
	return b.BoolValue, nil
}
