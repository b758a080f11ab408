package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryClientInterceptor forwards the trace and tracker tags of ctx as
// outgoing metadata, so the OCR service can attribute each call to a tracker
// run. Calls without tags start a trace of their own.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		tc, ok := FromContext(ctx)
		if !ok {
			tc = New()
		}
		pairs := []string{TraceIDKey, tc.TraceID, SpanIDKey, tc.SpanID}
		if tc.Kind != "" {
			pairs = append(pairs, KindKey, tc.Kind)
		}
		if tc.Session != "" {
			pairs = append(pairs, SessionKey, tc.Session)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
