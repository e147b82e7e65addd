package logger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/docker/go-units"
)

// Error records err under "error". A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// RequestID records the request identifier under "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Provider records the upload backend under "provider".
func Provider(p fmt.Stringer) slog.Attr {
	return slog.String("provider", p.String())
}

// Kind records a normalized error kind under "kind".
func Kind(k fmt.Stringer) slog.Attr {
	return slog.String("kind", k.String())
}

// Path records a remote object path under "path".
func Path(p string) slog.Attr {
	return slog.String("path", p)
}

// Size records a byte count under "size" in human form, e.g. "1.5MiB".
func Size(n int64) slog.Attr {
	return slog.String("size", units.BytesSize(float64(n)))
}

// Duration records an elapsed time under "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
