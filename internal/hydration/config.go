package hydration

import "context"

// GroupFunc computes a group's output from the object and the request
// context.
type GroupFunc func(ctx context.Context, obj any) (map[string]any, error)

// Group is either a list of property paths extracted generically from the
// object, or a handler computing the output itself.
type Group struct {
	Fields  []string
	Handler GroupFunc
}

// Profile names the groups that make up one response shape. When Grouping
// is set each group's output is namespaced under the group name; otherwise
// the outputs are flat-merged in order.
type Profile struct {
	Name     string
	Groups   []string
	Grouping bool
}

// Config is the full hydration setup of one entity type: named groups plus
// the profiles built from them. A profile whose name matches a bare group
// registered with BareProfile is shorthand for a single-group flat profile.
type Config struct {
	groups   map[string]*Group
	profiles map[string]*Profile
}

func NewConfig() *Config {
	return &Config{
		groups:   make(map[string]*Group),
		profiles: make(map[string]*Profile),
	}
}

// Group registers a field-list group.
func (c *Config) Group(name string, fields ...string) *Config {
	c.groups[name] = &Group{Fields: fields}
	return c
}

// GroupFunc registers a handler group.
func (c *Config) GroupFunc(name string, fn GroupFunc) *Config {
	c.groups[name] = &Group{Handler: fn}
	return c
}

// Profile registers a profile over previously (or later) declared groups.
func (c *Config) Profile(name string, grouping bool, groups ...string) *Config {
	c.profiles[name] = &Profile{Name: name, Groups: groups, Grouping: grouping}
	return c
}

// BareProfile exposes a single group directly as a profile of the same
// name, hydrating flat.
func (c *Config) BareProfile(group string) *Config {
	c.profiles[group] = &Profile{Name: group, Groups: []string{group}}
	return c
}

func (c *Config) group(name string) *Group     { return c.groups[name] }
func (c *Config) profile(name string) *Profile { return c.profiles[name] }
