package node

import (
	"context"
	"log/slog"
)

// levelFloor drops records below floor before they reach the wrapped handler.
type levelFloor struct {
	slog.Handler
	floor slog.Level
}

func withLevelFloor(h slog.Handler, floor slog.Level) slog.Handler {
	return &levelFloor{Handler: h, floor: floor}
}

func (h *levelFloor) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.floor && h.Handler.Enabled(ctx, l)
}

func (h *levelFloor) WithAttrs(attrs []slog.Attr) slog.Handler {
	return withLevelFloor(h.Handler.WithAttrs(attrs), h.floor)
}

func (h *levelFloor) WithGroup(name string) slog.Handler {
	return withLevelFloor(h.Handler.WithGroup(name), h.floor)
}
