// Package groutine starts named goroutines. Names and device ids are attached
// as pprof labels so goroutine dumps show which session a worker belongs to.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a goroutine labelled with name.
// Optional label pairs (key, value, key, value...) are added to the pprof labels.
// If parentCtx is nil, context.Background() is used.
//
//	groutine.Go(ctx, "session-worker", fn, "device_id", id)
func Go(parentCtx context.Context, name string, fn func(ctx context.Context), labels ...string) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	if len(labels)%2 != 0 {
		labels = labels[:len(labels)-1]
	}

	set := pprof.Labels(append([]string{"goroutine_name", name}, labels...)...)

	go pprof.Do(parentCtx, set, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetLabel returns a pprof label attached by Go.
func GetLabel(ctx context.Context, key string) string {
	if ctx == nil {
		return ""
	}
	v, _ := pprof.Label(ctx, key)
	return v
}
