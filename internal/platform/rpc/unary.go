package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Empty is the request or response of methods that carry no fields.
type Empty struct{}

// Unary adapts a typed handler method into a grpc.MethodDesc for service. S is the concrete
// server type registered with the descriptor.
func Unary[S any, Req any, Resp any](service, method string, fn func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the gRPC path for method on service.
func FullMethod(service, method string) string {
	return "/" + service + "/" + method
}
