// Package bridge is the host side of an OpenSync plugin running in a
// confined WebAssembly guest.
//
// A Bridge owns one confine.Worker and the engine.Guest it boots. Every
// callback is dispatched through the worker, so host code may call it
// from any goroutine:
//
//	b, err := bridge.Open(wasm, &engine.Config{Name: "contacts"})
//	env := bridge.NewEnv()
//	if _, err := b.GetSyncInfo(ctx, env); err != nil { ... }
//	p := b.Plugin(env.Plugins()[0].Owner)
//	info := bridge.NewPluginInfo("")
//	if _, err := p.Initialize(ctx, info); err != nil { ... }
//	sink := b.Sink(info.Sinks()[0].Owner)
//	err = sink.Connect(ctx, info, bridge.NewContext())
//
// Callbacks are looked up in the registry under the slot's key. A
// required callback that the guest never registered fails with a
// missing_callback error; an optional one returns its declared default.
// Failures are *errors.CallError values whose message follows
// "Failed to call <slot>!" and whose backtrace comes from the guest.
//
// Calls whose decoded result does not fit the slot's contract fail with
// the contract message, for example "The result should be a String!".
package bridge
