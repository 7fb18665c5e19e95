package bridge

import (
	"context"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/registry"
)

// Plugin dispatches plugin callbacks.
type Plugin struct {
	b     *Bridge
	owner registry.Owner
}

// Plugin returns the dispatcher for a plugin owner.
func (b *Bridge) Plugin(owner registry.Owner) Plugin { return Plugin{b: b, owner: owner} }

// Initialize runs the plugin's initialize callback and keeps the returned
// user data pinned until Finalize.
func (p Plugin) Initialize(ctx context.Context, info *PluginInfo) (syncbridge.Ref, error) {
	v, err := p.b.Dispatch(ctx, p.owner, callback.Plugin.Initialize, p.owner, info)
	if err != nil {
		return 0, err
	}
	ref, _ := v.(syncbridge.Ref)
	if err := p.b.reg.Set(p.owner, callback.DataKey, v); err != nil {
		return 0, err
	}
	return ref, nil
}

// Finalize runs the plugin's finalize callback and unpins its user data.
func (p Plugin) Finalize(ctx context.Context) error {
	_, err := p.b.Dispatch(ctx, p.owner, callback.Plugin.Finalize, p.owner, p.b.data(p.owner))
	if uerr := p.b.reg.Set(p.owner, callback.DataKey, nil); err == nil {
		err = uerr
	}
	return err
}

// Discover runs the plugin's discover callback.
func (p Plugin) Discover(ctx context.Context, info *PluginInfo) (bool, error) {
	v, err := p.b.Dispatch(ctx, p.owner, callback.Plugin.Discover, p.owner, info, p.b.data(p.owner))
	return asBool(v, err)
}

// Sink dispatches object type sink callbacks. Sinks report through the
// context instead of returning a value.
type Sink struct {
	b     *Bridge
	owner registry.Owner
}

// Sink returns the dispatcher for a sink owner.
func (b *Bridge) Sink(owner registry.Owner) Sink { return Sink{b: b, owner: owner} }

func (s Sink) call(ctx context.Context, slot callback.Slot, info *PluginInfo, sc *Context, extra ...any) error {
	args := append([]any{s.owner, info, sc}, extra...)
	_, err := s.b.Dispatch(ctx, s.owner, slot, append(args, s.b.data(s.owner))...)
	if err != nil && sc != nil {
		ce := errors.AsCall(err, slot.Code(), "Failed to call %s!", slot.Name())
		sc.Report(int32(ce.Code), ce.Error())
	}
	return err
}

func (s Sink) Connect(ctx context.Context, info *PluginInfo, sc *Context) error {
	return s.call(ctx, callback.Sink.Connect, info, sc)
}

func (s Sink) Disconnect(ctx context.Context, info *PluginInfo, sc *Context) error {
	return s.call(ctx, callback.Sink.Disconnect, info, sc)
}

func (s Sink) GetChanges(ctx context.Context, info *PluginInfo, sc *Context, slowSync bool) error {
	return s.call(ctx, callback.Sink.GetChanges, info, sc, slowSync)
}

func (s Sink) Commit(ctx context.Context, info *PluginInfo, sc *Context, ch *Change) error {
	return s.call(ctx, callback.Sink.Commit, info, sc, ch)
}

func (s Sink) CommittedAll(ctx context.Context, info *PluginInfo, sc *Context) error {
	return s.call(ctx, callback.Sink.CommittedAll, info, sc)
}

func (s Sink) Read(ctx context.Context, info *PluginInfo, sc *Context, ch *Change) error {
	return s.call(ctx, callback.Sink.Read, info, sc, ch)
}

func (s Sink) SyncDone(ctx context.Context, info *PluginInfo, sc *Context) error {
	return s.call(ctx, callback.Sink.SyncDone, info, sc)
}

func (s Sink) ConnectDone(ctx context.Context, info *PluginInfo, sc *Context, slowSync bool) error {
	return s.call(ctx, callback.Sink.ConnectDone, info, sc, slowSync)
}

// Format dispatches object format callbacks.
type Format struct {
	b     *Bridge
	owner registry.Owner
}

// Format returns the dispatcher for an object format owner.
func (b *Bridge) Format(owner registry.Owner) Format { return Format{b: b, owner: owner} }

// Initialize runs the format's initialize callback and keeps the returned
// user data pinned until Finalize. A format without one has no user data.
func (f Format) Initialize(ctx context.Context) (syncbridge.Ref, error) {
	v, err := f.b.Dispatch(ctx, f.owner, callback.Format.Initialize, f.owner)
	if err != nil {
		return 0, err
	}
	ref, _ := v.(syncbridge.Ref)
	if err := f.b.reg.Set(f.owner, callback.DataKey, v); err != nil {
		return 0, err
	}
	return ref, nil
}

// Finalize runs the format's finalize callback and unpins its user data.
func (f Format) Finalize(ctx context.Context) (bool, error) {
	ok, err := asBool(f.b.Dispatch(ctx, f.owner, callback.Format.Finalize, f.owner, f.b.data(f.owner)))
	if uerr := f.b.reg.Set(f.owner, callback.DataKey, nil); err == nil {
		err = uerr
	}
	return ok, err
}

func (f Format) Compare(ctx context.Context, left, right []byte) (int64, error) {
	return asInt(f.b.Dispatch(ctx, f.owner, callback.Format.Compare, f.owner, left, right, f.b.data(f.owner)))
}

func (f Format) Copy(ctx context.Context, input []byte) ([]byte, error) {
	return asBytes(f.b.Dispatch(ctx, f.owner, callback.Format.Copy, f.owner, input, f.b.data(f.owner)))
}

func (f Format) Duplicate(ctx context.Context, uid string, input []byte) (callback.Duplicate, error) {
	v, err := f.b.Dispatch(ctx, f.owner, callback.Format.Duplicate, f.owner, uid, input, f.b.data(f.owner))
	if err != nil {
		return callback.Duplicate{}, err
	}
	d, _ := v.(callback.Duplicate)
	return d, nil
}

func (f Format) Create(ctx context.Context) ([]byte, error) {
	return asBytes(f.b.Dispatch(ctx, f.owner, callback.Format.Create, f.owner, f.b.data(f.owner)))
}

func (f Format) Destroy(ctx context.Context, data []byte) (bool, error) {
	return asBool(f.b.Dispatch(ctx, f.owner, callback.Format.Destroy, f.owner, data, f.b.data(f.owner)))
}

func (f Format) Print(ctx context.Context, data []byte) (string, error) {
	b, err := asBytes(f.b.Dispatch(ctx, f.owner, callback.Format.Print, f.owner, data, f.b.data(f.owner)))
	return string(b), err
}

func (f Format) Revision(ctx context.Context, data []byte) (int64, error) {
	return asInt(f.b.Dispatch(ctx, f.owner, callback.Format.Revision, f.owner, data, f.b.data(f.owner)))
}

func (f Format) Marshal(ctx context.Context, input []byte, m *Marshal) (bool, error) {
	return asBool(f.b.Dispatch(ctx, f.owner, callback.Format.Marshal, f.owner, input, m, f.b.data(f.owner)))
}

func (f Format) Demarshal(ctx context.Context, m *Marshal) ([]byte, error) {
	return asBytes(f.b.Dispatch(ctx, f.owner, callback.Format.Demarshal, f.owner, m, f.b.data(f.owner)))
}

func (f Format) Validate(ctx context.Context, data []byte) (bool, error) {
	return asBool(f.b.Dispatch(ctx, f.owner, callback.Format.Validate, f.owner, data, f.b.data(f.owner)))
}

// Converter dispatches format converter callbacks.
type Converter struct {
	b     *Bridge
	owner registry.Owner
}

// Converter returns the dispatcher for a converter owner.
func (b *Bridge) Converter(owner registry.Owner) Converter { return Converter{b: b, owner: owner} }

// Initialize runs the converter's initialize callback with config and
// keeps the returned user data pinned until Finalize.
func (c Converter) Initialize(ctx context.Context, config string) (syncbridge.Ref, error) {
	v, err := c.b.Dispatch(ctx, c.owner, callback.Converter.Initialize, config)
	if err != nil {
		return 0, err
	}
	ref, _ := v.(syncbridge.Ref)
	if err := c.b.reg.Set(c.owner, callback.DataKey, v); err != nil {
		return 0, err
	}
	return ref, nil
}

// Convert runs the converter on input.
func (c Converter) Convert(ctx context.Context, input []byte, config string) ([]byte, error) {
	return asBytes(c.b.Dispatch(ctx, c.owner, callback.Converter.Convert, input, config, c.b.data(c.owner)))
}

// Finalize runs the converter's finalize callback and unpins its user data.
func (c Converter) Finalize(ctx context.Context) error {
	_, err := c.b.Dispatch(ctx, c.owner, callback.Converter.Finalize, c.b.data(c.owner))
	if uerr := c.b.reg.Set(c.owner, callback.DataKey, nil); err == nil {
		err = uerr
	}
	return err
}

func asBool(v any, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok && v != nil {
		return false, errors.TypeMismatch(errors.PhaseResult, nil, "osync_bool", v)
	}
	return b, nil
}

func asInt(v any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok && v != nil {
		return 0, errors.TypeMismatch(errors.PhaseResult, nil, "int", v)
	}
	return n, nil
}

func asBytes(v any, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok && v != nil {
		return nil, errors.TypeMismatch(errors.PhaseResult, nil, "char*", v)
	}
	return b, nil
}
