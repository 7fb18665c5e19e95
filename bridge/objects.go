package bridge

import (
	"slices"
	"sync"

	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/registry"
)

// Registered is an owner a guest created while registering itself.
type Registered struct {
	Owner registry.Owner
	Name  string
	Kind  callback.OwnerKind
}

func (r Registered) String() string { return r.Kind.String() + " " + r.Name }

// Lookup returns the registration bound to owner by AddOwner.
func Lookup(owner registry.Owner) (Registered, bool) {
	v, _ := owner.Object()
	r, ok := v.(Registered)
	return r, ok
}

type collection struct {
	allowed []callback.OwnerKind
	owners  []Registered
	mu      sync.Mutex
}

func (c *collection) AddOwner(kind callback.OwnerKind, name string, owner registry.Owner) error {
	if !slices.Contains(c.allowed, kind) {
		return errors.InvalidInput(errors.PhaseHost, "cannot register a "+kind.String()+" here")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, kind.String()+" needs a name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.owners {
		if r.Kind == kind && r.Name == name {
			return errors.InvalidInput(errors.PhaseHost, kind.String()+" "+name+" registered twice")
		}
	}
	r := Registered{Owner: owner, Name: name, Kind: kind}
	c.owners = append(c.owners, r)
	owner.Bind(r)
	return nil
}

func (c *collection) of(kind callback.OwnerKind) []Registered {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Registered
	for _, r := range c.owners {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Env is the registration environment handed to get_sync_info,
// get_format_info and get_conversion_info.
type Env struct {
	collection
}

// NewEnv returns an empty environment.
func NewEnv() *Env {
	return &Env{collection{allowed: []callback.OwnerKind{
		callback.OwnerPlugin, callback.OwnerFormat, callback.OwnerConverter,
	}}}
}

// Plugins returns the plugins registered so far.
func (e *Env) Plugins() []Registered { return e.of(callback.OwnerPlugin) }

// Formats returns the object formats registered so far.
func (e *Env) Formats() []Registered { return e.of(callback.OwnerFormat) }

// Converters returns the format converters registered so far.
func (e *Env) Converters() []Registered { return e.of(callback.OwnerConverter) }

// PluginInfo is passed to plugin callbacks; sinks created during
// initialize are collected here.
type PluginInfo struct {
	Config string
	collection
}

// NewPluginInfo returns plugin info carrying config.
func NewPluginInfo(config string) *PluginInfo {
	return &PluginInfo{Config: config, collection: collection{allowed: []callback.OwnerKind{callback.OwnerSink}}}
}

// Field exposes the plugin configuration as "config".
func (i *PluginInfo) Field(name string) ([]byte, bool) {
	if name != "config" {
		return nil, false
	}
	return []byte(i.Config), true
}

// Sinks returns the object type sinks created by the plugin.
func (i *PluginInfo) Sinks() []Registered { return i.of(callback.OwnerSink) }

// Report is one osync.report call.
type Report struct {
	Message string
	Code    int32
}

// Context collects the reports of one sink callback.
type Context struct {
	reports []Report
	mu      sync.Mutex
}

// NewContext returns an empty context.
func NewContext() *Context { return &Context{} }

// Report implements engine.Reporter.
func (c *Context) Report(code int32, message string) {
	c.mu.Lock()
	c.reports = append(c.reports, Report{Code: code, Message: message})
	c.mu.Unlock()
}

// Reports returns the reports received so far.
func (c *Context) Reports() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Report(nil), c.reports...)
}

// Err returns the first report with a non-zero code as a CallError.
func (c *Context) Err() error {
	for _, r := range c.Reports() {
		if r.Code != 0 {
			return &errors.CallError{Code: errors.CodeGeneric, Message: r.Message}
		}
	}
	return nil
}

// Fields is a set of named byte fields readable and writable by the guest.
type Fields struct {
	m  map[string][]byte
	mu sync.Mutex
}

// Field implements engine.Fielder.
func (f *Fields) Field(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[name]
	return v, ok
}

// SetField implements engine.FieldSetter.
func (f *Fields) SetField(name string, value []byte) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "field name is empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.m == nil {
		f.m = make(map[string][]byte)
	}
	f.m[name] = value
	return nil
}

// Len returns the number of fields set.
func (f *Fields) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}

// Change is one entry passed to commit and read.
type Change struct {
	Fields
	UID string
}

// NewChange returns a change with its "uid" and "data" fields set.
func NewChange(uid string, data []byte) *Change {
	c := &Change{UID: uid}
	_ = c.SetField("uid", []byte(uid))
	if data != nil {
		_ = c.SetField("data", data)
	}
	return c
}

// Marshal is the stream of objformat marshal and demarshal.
type Marshal struct {
	Fields
}
