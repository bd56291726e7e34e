package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type (
	requestDataKey struct{}
	traceDataKey   struct{}
)

// RequestData identifies the authenticated viewer of a request.
type RequestData struct {
	UserID    uuid.UUID
	SessionID string
}

// TraceData correlates log lines of one request with its trace.
type TraceData struct {
	TraceID   string
	RequestID string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	rd, _ := ctx.Value(requestDataKey{}).(*RequestData)
	return rd
}

// ViewerID returns the authenticated user, or uuid.Nil.
func ViewerID(ctx context.Context) uuid.UUID {
	if rd := GetRequestData(ctx); rd != nil {
		return rd.UserID
	}
	return uuid.Nil
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	td, _ := ctx.Value(traceDataKey{}).(*TraceData)
	return td
}

// LogFields returns request correlation fields for a logger.With call.
func LogFields(ctx context.Context) []interface{} {
	var fields []interface{}
	if td := GetTraceData(ctx); td != nil {
		if td.TraceID != "" {
			fields = append(fields, "trace_id", td.TraceID)
		}
		if td.RequestID != "" {
			fields = append(fields, "request_id", td.RequestID)
		}
	}
	if rd := GetRequestData(ctx); rd != nil {
		if rd.UserID != uuid.Nil {
			fields = append(fields, "user_id", rd.UserID.String())
		}
		if rd.SessionID != "" {
			fields = append(fields, "session_id", rd.SessionID)
		}
	}
	return fields
}
