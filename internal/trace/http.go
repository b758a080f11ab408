package trace

import (
	"encoding/json"
	"net/http"
)

// Middleware continues the caller's trace from request headers, or starts
// one, and echoes the trace ID in the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := Context{
			TraceID: r.Header.Get(TraceIDKey),
			SpanID:  r.Header.Get(SpanIDKey),
		}.Child()
		w.Header().Set(TraceIDKey, tc.TraceID)
		ctx := WithContext(r.Context(), tc)
		Logger(ctx).Debug("http request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ExtractFromJSON continues the trace named by a control message's
// trace_id. ok is false when the message carries none.
func ExtractFromJSON(data []byte) (tc Context, ok bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return Context{}, false
	}
	return Context{TraceID: msg.TraceID}.Child(), true
}
