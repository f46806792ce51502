// Package tenant carries the active subsite identity through a request.
//
// Three states are distinguished and must stay distinct:
//   - no subsite in the context: administrative/global browsing, queries are
//     not filtered at all;
//   - subsite ID 0: global administrative context, only groups with access to
//     all subsites qualify;
//   - subsite ID > 0: a specific subsite.
package tenant

import "context"

type subsiteKey struct{}

type unscopedKey struct{}

// WithSubsite returns a context with the given subsite set as the active one.
// ID 0 is valid and means the global administrative context.
func WithSubsite(ctx context.Context, id uint) context.Context {
	return context.WithValue(ctx, subsiteKey{}, id)
}

// SubsiteID returns the active subsite ID. ok is false when no subsite context
// has been established, which callers must treat differently from ID 0.
func SubsiteID(ctx context.Context) (uint, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(subsiteKey{}).(uint)
	return id, ok
}

// WithScopingDisabled returns a context that opts the request out of subsite
// query filtering. Used by administrative flows that must see every group.
func WithScopingDisabled(ctx context.Context) context.Context {
	return context.WithValue(ctx, unscopedKey{}, true)
}

// ScopingDisabled reports whether the request opted out of subsite filtering.
func ScopingDisabled(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	disabled, _ := ctx.Value(unscopedKey{}).(bool)
	return disabled
}
