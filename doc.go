// Package syncbridge runs sync-framework plugin callbacks inside a
// single-threaded WebAssembly guest.
//
// The host framework invokes plugin callbacks (connect, read, commit,
// format compare and copy, ...) on whatever threads it likes. The guest
// runtime may only ever be entered from one thread. syncbridge confines
// every entry into the guest to one dedicated worker and gives arbitrary
// callers a synchronous way to run work there.
//
// # Architecture Overview
//
//	syncbridge/          Root package with Ref, Memory and Allocator
//	├── confine/         Worker lifecycle and the single-slot call channel
//	├── signature/       Argument binding from native prototypes
//	├── registry/        Owner-keyed handle registry with pinning
//	├── resource/        Host object handles exposed to the guest
//	├── engine/          wazero guest runtime and marshaling entry points
//	├── callback/        Callback slots per owner kind and result contracts
//	├── bridge/          Host-facing dispatch surface
//	├── errors/          Structured errors and call failure reports
//	├── wasm/            Binary module decoder used to check guest imports
//	├── wat/             WebAssembly text compiler
//	├── internal/watgen/ Guest templates and the built-in demo plugin
//	├── cmd/syncbridge/  CLI for running and inspecting plugins
//	└── examples/basic/  Embedding example
//
// # Quick Start
//
//	b, err := bridge.Open(wasmBytes, &engine.Config{Name: "vcard"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Shutdown(ctx)
//
//	env := bridge.NewEnv()
//	if _, err := b.GetSyncInfo(ctx, env); err != nil {
//	    log.Fatal(err)
//	}
//	for _, p := range env.Plugins() {
//	    info := bridge.NewPluginInfo(config)
//	    if _, err := b.Plugin(p.Owner).Initialize(ctx, info); err != nil {
//	        log.Fatal(err)
//	    }
//	    for _, s := range info.Sinks() {
//	        err = b.Sink(s.Owner).Connect(ctx, info, bridge.NewContext())
//	    }
//	}
//
// # Thread Safety
//
// Bridge, Worker and Registry are safe for concurrent use. The guest
// instance is NOT thread-safe; it is only ever touched by the worker
// goroutine, which is locked to its OS thread for its whole life.
//
// Calls are strictly serialized: at most one call is inside the guest at
// any time. A callback that calls back into the host, which in turn invokes
// another callback, runs inline on the worker instead of queueing.
package syncbridge
