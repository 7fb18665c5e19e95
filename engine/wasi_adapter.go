package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const wasiModule = "wasi_snapshot_preview1"

// instantiateWASI makes WASI preview1 available to the guest. Guests built
// by ordinary toolchains import it for stdio and proc_exit even when they
// never touch the filesystem.
func instantiateWASI(ctx context.Context, r wazero.Runtime) error {
	if r.Module(wasiModule) != nil {
		return nil
	}
	builder := r.NewHostModuleBuilder(wasiModule)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	_, err := builder.Instantiate(ctx)
	return err
}
