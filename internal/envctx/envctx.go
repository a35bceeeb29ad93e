// Package envctx provides the hierarchical environment context shared by
// every stage of a build. A context is immutable after construction;
// entering a stage scope copies the parent and applies the stage's
// bindings, so concurrent parallel branches never observe each other's
// overrides.
package envctx

import (
	"fmt"
	"os"
	"sort"
)

// Context is an immutable set of variable bindings.
type Context struct {
	vars map[string]string
}

// New creates a Context from the given bindings. The map is copied.
func New(vars map[string]string) *Context {
	c := &Context{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		c.vars[k] = v
	}
	return c
}

// Enter returns a child Context with the given bindings applied on top of
// the receiver's. The receiver is not modified. A nil or empty override
// map returns the receiver unchanged.
func (c *Context) Enter(overrides map[string]string) *Context {
	if len(overrides) == 0 {
		return c
	}
	child := &Context{vars: make(map[string]string, len(c.vars)+len(overrides))}
	for k, v := range c.vars {
		child.vars[k] = v
	}
	for k, v := range overrides {
		child.vars[k] = v
	}
	return child
}

// Lookup returns the value bound to key and whether it exists.
func (c *Context) Lookup(key string) (string, bool) {
	v, ok := c.vars[key]
	return v, ok
}

// Expand replaces $VAR and ${VAR} references in s with bound values.
// Unbound references expand to the empty string.
func (c *Context) Expand(s string) string {
	return os.Expand(s, func(key string) string {
		return c.vars[key]
	})
}

// Environ returns the bindings as a sorted KEY=VALUE slice suitable for
// exec.Cmd.Env.
func (c *Context) Environ() []string {
	out := make([]string, 0, len(c.vars))
	for k, v := range c.vars {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}

// Len returns the number of bindings.
func (c *Context) Len() int {
	return len(c.vars)
}
