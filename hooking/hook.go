// Package hooking lets observers attach to well-defined sites of the
// simulator, such as right before and right after an event fires.
package hooking

// HookPos names a site that raises hooks.
type HookPos struct {
	Name string
}

// HookCtx describes the site a hook is invoked from.
type HookCtx struct {
	// Domain is the object raising the hook, usually a simulator.
	Domain Hookable

	// Pos is the site.
	Pos *HookPos

	// Item is the subject of the hook, such as the event being fired.
	Item any

	// Detail holds optional data. Sites may leave it nil.
	Detail any
}

// Hookable is an object that accepts hooks.
type Hookable interface {
	// AcceptHook registers a hook. Hooks are registered before the domain
	// starts running and are never removed.
	AcceptHook(hook Hook)

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns all the hooks registered.
	Hooks() []Hook

	// InvokeHook triggers the registered hooks.
	InvokeHook(ctx HookCtx)
}

// Hook is invoked by a hookable object.
type Hook interface {
	// Func is called with the context of the site.
	Func(ctx HookCtx)
}

// HookFunc adapts a function to a Hook. The hook only fires at the listed
// positions, or at every position if none is listed.
type HookFunc struct {
	fn   func(ctx HookCtx)
	poss []*HookPos
}

// NewHookFunc wraps fn into a Hook.
func NewHookFunc(fn func(ctx HookCtx), poss ...*HookPos) *HookFunc {
	return &HookFunc{fn: fn, poss: poss}
}

// Func calls the wrapped function if the position matches.
func (h *HookFunc) Func(ctx HookCtx) {
	if len(h.poss) == 0 {
		h.fn(ctx)
		return
	}

	for _, p := range h.poss {
		if p == ctx.Pos {
			h.fn(ctx)
			return
		}
	}
}

// A HookableBase implements the bookkeeping part of Hookable.
type HookableBase struct {
	hookList []Hook
}

// NewHookableBase creates a HookableBase object.
func NewHookableBase() *HookableBase {
	h := new(HookableBase)
	h.hookList = make([]Hook, 0)

	return h
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, existing := range h.hookList {
		if existing == hook {
			panic("hooking: duplicated hook")
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook triggers the registered hooks in registration order.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}

var _ Hookable = (*HookableBase)(nil)
