package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/syncbridge/confine"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/signature"
)

// Guest entry points called once when the module is loaded.
const (
	SyncInfoExport       = "get_sync_info"
	FormatInfoExport     = "get_format_info"
	ConversionInfoExport = "get_conversion_info"
)

var (
	pluginEnvTable = signature.Declare("osync_bool", []signature.Param{{Name: "env", Type: "OSyncPluginEnv *"}}, nil)
	formatEnvTable = signature.Declare("osync_bool", []signature.Param{{Name: "env", Type: "OSyncFormatEnv *"}}, nil)
)

// GetSyncInfo lets the guest register its plugins in env.
func (b *Bridge) GetSyncInfo(ctx context.Context, env *Env) (bool, error) {
	return b.info(ctx, SyncInfoExport, pluginEnvTable, env)
}

// GetFormatInfo lets the guest register its object formats in env.
func (b *Bridge) GetFormatInfo(ctx context.Context, env *Env) (bool, error) {
	return b.info(ctx, FormatInfoExport, formatEnvTable, env)
}

// GetConversionInfo lets the guest register its converters in env.
func (b *Bridge) GetConversionInfo(ctx context.Context, env *Env) (bool, error) {
	return b.info(ctx, ConversionInfoExport, formatEnvTable, env)
}

// info calls a registration entry point. A guest that does not export it
// reports false without error.
func (b *Bridge) info(ctx context.Context, export string, table *signature.Table, env *Env) (bool, error) {
	if b.guest == nil {
		return false, errors.NotInitialized(errors.PhaseCall, "guest")
	}
	in, err := table.Bind(env)
	if err != nil {
		return false, err
	}

	c := &confine.Call{
		Name: export,
		Code: errors.CodeInitialization,
		In:   in,
		Target: func(ctx context.Context, c *confine.Call) error {
			if !b.guest.Export(export) {
				b.log.Debug("guest has no registration entry point", zap.String("export", export))
				c.Result = false
				return nil
			}
			out, err := b.guest.Call(ctx, export, c.In, signature.KindBool)
			if err != nil {
				return err
			}
			c.Result = out[0]
			return nil
		},
	}
	if _, err := b.worker.Invoke(ctx, c); err != nil {
		return false, err
	}
	ok, _ := c.Result.(bool)
	return ok, nil
}
