// Package server exposes the orchestrator control surface over gRPC.
//
// The service is described by hand (no generated stubs): every request and
// response is a google.protobuf.Struct or google.protobuf.Empty, encoded
// from the orchestrator's own JSON shapes.
package server

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lazyapply.v1.Control"

// ControlServer is implemented by Server.
type ControlServer interface {
	Enqueue(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Pause(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Resume(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Clear(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	Status(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	ResumeAfterAuth(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc registers ControlServer with a grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Enqueue", newStruct, ControlServer.Enqueue),
		unary("Pause", newEmpty, ControlServer.Pause),
		unary("Resume", newEmpty, ControlServer.Resume),
		unary("Clear", newEmpty, ControlServer.Clear),
		unary("Cancel", newEmpty, ControlServer.Cancel),
		unary("Status", newEmpty, ControlServer.Status),
		unary("ResumeAfterAuth", newEmpty, ControlServer.ResumeAfterAuth),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lazyapply/v1/control.proto",
}

func newStruct() *structpb.Struct { return &structpb.Struct{} }
func newEmpty() *emptypb.Empty    { return &emptypb.Empty{} }

func unary[Req proto.Message](name string, newReq func() Req, call func(ControlServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := newReq()
			if err := dec(req); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(srv.(ControlServer), ctx, r.(Req))
			})
		},
	}
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// toStruct encodes v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode response")
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(err, "encode response")
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return errors.Wrap(err, "decode response")
	}
	return errors.Wrap(json.Unmarshal(raw, v), "decode response")
}
