package business_flow

import "context"

type contextKey string

// Context keys for request-scoped values carried into flows
const (
	RequestIDKey contextKey = "request_id"
	IPAddressKey contextKey = "ip_address"
	UserAgentKey contextKey = "user_agent"
)

// ClientMetadata carries request-scoped client details into flows
type ClientMetadata struct {
	RequestID string `json:"request_id"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// WithClientMetadata attaches client details to the context for logging
// inside flows.
func WithClientMetadata(ctx context.Context, meta ClientMetadata) context.Context {
	ctx = context.WithValue(ctx, RequestIDKey, meta.RequestID)
	ctx = context.WithValue(ctx, IPAddressKey, meta.IPAddress)
	ctx = context.WithValue(ctx, UserAgentKey, meta.UserAgent)
	return ctx
}

// RequestID returns the request id carried on the context, if any
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
