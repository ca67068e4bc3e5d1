package otel

import (
	"context"
	"log/slog"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const logScope = "identity-core/backend"

// recordEmitter is the part of otellog.Logger the handler needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// slogHandler forwards every record to next and also emits it as an OTel log record.
type slogHandler struct {
	next   slog.Handler
	logger recordEmitter
	attrs  []otellog.KeyValue
	prefix string
}

// NewSlogHandler wraps next so records are also exported through provider. A nil provider
// returns next unchanged.
func NewSlogHandler(next slog.Handler, provider *sdklog.LoggerProvider) slog.Handler {
	if provider == nil {
		return next
	}
	return newSlogHandler(next, provider.Logger(logScope))
}

func newSlogHandler(next slog.Handler, logger recordEmitter) *slogHandler {
	return &slogHandler{next: next, logger: logger}
}

func (h *slogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *slogHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := otellog.Record{}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec.SetTimestamp(ts)
	rec.SetBody(otellog.StringValue(r.Message))
	rec.SetSeverity(severity(r.Level))
	rec.SetSeverityText(r.Level.String())
	rec.AddAttributes(h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		rec.AddAttributes(convertAttr(h.prefix, a)...)
		return true
	})
	h.logger.Emit(ctx, rec)
	return h.next.Handle(ctx, r)
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.next = h.next.WithAttrs(attrs)
	for _, a := range attrs {
		c.attrs = append(c.attrs, convertAttr(h.prefix, a)...)
	}
	return c
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.next = h.next.WithGroup(name)
	c.prefix = h.prefix + name + "."
	return c
}

func (h *slogHandler) clone() *slogHandler {
	c := *h
	c.attrs = append([]otellog.KeyValue(nil), h.attrs...)
	return &c
}

func convertAttr(prefix string, a slog.Attr) []otellog.KeyValue {
	v := a.Value.Resolve()
	key := prefix + a.Key
	switch v.Kind() {
	case slog.KindGroup:
		var out []otellog.KeyValue
		p := prefix
		if a.Key != "" {
			p = key + "."
		}
		for _, ga := range v.Group() {
			out = append(out, convertAttr(p, ga)...)
		}
		return out
	case slog.KindString:
		return []otellog.KeyValue{otellog.String(key, v.String())}
	case slog.KindInt64:
		return []otellog.KeyValue{otellog.Int64(key, v.Int64())}
	case slog.KindUint64:
		return []otellog.KeyValue{otellog.Int64(key, int64(v.Uint64()))}
	case slog.KindFloat64:
		return []otellog.KeyValue{otellog.Float64(key, v.Float64())}
	case slog.KindBool:
		return []otellog.KeyValue{otellog.Bool(key, v.Bool())}
	case slog.KindDuration:
		return []otellog.KeyValue{otellog.Int64(key+"_ms", v.Duration().Milliseconds())}
	case slog.KindTime:
		return []otellog.KeyValue{otellog.String(key, v.Time().UTC().Format(time.RFC3339Nano))}
	default:
		return []otellog.KeyValue{otellog.String(key, v.String())}
	}
}

func severity(l slog.Level) otellog.Severity {
	switch {
	case l >= slog.LevelError:
		return otellog.SeverityError
	case l >= slog.LevelWarn:
		return otellog.SeverityWarn
	case l >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}
