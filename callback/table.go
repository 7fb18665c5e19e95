package callback

import (
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/signature"
)

// Spec is the declaration of one callback slot.
type Spec struct {
	// Default is returned when an optional slot is not registered.
	Default any
	Table   *signature.Table
	Name    string
	// Mismatch is the failure message when the guest's result does not
	// fit the contract.
	Mismatch string
	Owner    OwnerKind
	Result   Contract
	Code     errors.Code
	Required bool
}

const (
	notString = "The result should be a String!"
	notFixnum = "The result should be a FixNum!"
	notBool   = "The result should be true or false!"
	notTriple = "The result should be an Array with [newuid:string, output:string, dirty:bool] !"
	notTime   = "Failed to convert time to a number!"
)

const (
	sinkProto        = "void (OSyncObjTypeSink *sink, OSyncPluginInfo *info, OSyncContext *ctx, void *data)"
	sinkSlowProto    = "void (OSyncObjTypeSink *sink, OSyncPluginInfo *info, OSyncContext *ctx, osync_bool slow_sync, void *data)"
	sinkChangeProto  = "void (OSyncObjTypeSink *sink, OSyncPluginInfo *info, OSyncContext *ctx, OSyncChange *change, void *data)"
	formatDataProto  = "(OSyncObjFormat *format, const char *data, unsigned int size, void *user_data, OSyncError **error)"
	sinkIn           = "sink, info, ctx, data"
	sinkSlowIn       = "sink, info, ctx, slow_sync, data"
	sinkChangeIn     = "sink, info, ctx, change, data"
	formatDataIn     = "format, data, user_data"
	formatOutputOuts = "output, outputsize"
)

var invalid = Spec{Table: &signature.Table{}}

var specs = [slotCount]Spec{
	PluginInitialize: {
		Owner: OwnerPlugin, Name: "initialize", Result: ResultData, Required: true, Code: errors.CodeInitialization,
		Table: signature.MustBind("void* (OSyncPlugin *plugin, OSyncPluginInfo *info, OSyncError **error)", "plugin, info", ""),
	},
	PluginFinalize: {
		Owner: OwnerPlugin, Name: "finalize", Result: ResultVoid, Code: errors.CodeGeneric,
		Table: signature.MustBind("void (OSyncPlugin *plugin, void* plugin_data)", "plugin, plugin_data", ""),
	},
	PluginDiscover: {
		Owner: OwnerPlugin, Name: "discover", Result: ResultBool, Required: true, Code: errors.CodeInitialization,
		Mismatch: notBool,
		Table:    signature.MustBind("osync_bool (OSyncPlugin *plugin, OSyncPluginInfo *info, void* plugin_data, OSyncError **error)", "plugin, info, plugin_data", ""),
	},

	SinkConnect:      {Owner: OwnerSink, Name: "connect", Required: true, Code: errors.CodeGeneric, Table: signature.MustBind(sinkProto, sinkIn, "")},
	SinkDisconnect:   {Owner: OwnerSink, Name: "disconnect", Required: true, Code: errors.CodeGeneric, Table: signature.MustBind(sinkProto, sinkIn, "")},
	SinkGetChanges:   {Owner: OwnerSink, Name: "get_changes", Required: true, Code: errors.CodeGeneric, Table: signature.MustBind(sinkSlowProto, sinkSlowIn, "")},
	SinkCommit:       {Owner: OwnerSink, Name: "commit", Required: true, Code: errors.CodeGeneric, Table: signature.MustBind(sinkChangeProto, sinkChangeIn, "")},
	SinkCommittedAll: {Owner: OwnerSink, Name: "committed_all", Code: errors.CodeGeneric, Table: signature.MustBind(sinkProto, sinkIn, "")},
	SinkRead:         {Owner: OwnerSink, Name: "read", Required: true, Code: errors.CodeGeneric, Table: signature.MustBind(sinkChangeProto, sinkChangeIn, "")},
	SinkSyncDone:     {Owner: OwnerSink, Name: "sync_done", Code: errors.CodeGeneric, Table: signature.MustBind(sinkProto, sinkIn, "")},
	SinkConnectDone:  {Owner: OwnerSink, Name: "connect_done", Code: errors.CodeGeneric, Table: signature.MustBind(sinkSlowProto, sinkSlowIn, "")},

	FormatInitialize: {
		Owner: OwnerFormat, Name: "initialize", Result: ResultData, Code: errors.CodeGeneric,
		Table: signature.MustBind("void * (OSyncObjFormat *format, OSyncError **error)", "format", ""),
	},
	FormatFinalize: {
		Owner: OwnerFormat, Name: "finalize", Result: ResultBool, Code: errors.CodeGeneric, Default: true,
		Mismatch: notBool,
		Table:    signature.MustBind("osync_bool (OSyncObjFormat *format, void *user_data, OSyncError **error)", "format, user_data", ""),
	},
	FormatCompare: {
		Owner: OwnerFormat, Name: "compare", Result: ResultInt, Required: true, Code: errors.CodeGeneric,
		Mismatch: notFixnum,
		Table: signature.MustBind(
			"OSyncConvCmpResult (OSyncObjFormat *format, const char *leftdata, unsigned int leftdatasize, const char *rightdata, unsigned int rightdatasize, void *user_data, OSyncError **error)",
			"format, leftdata, rightdata, user_data", ""),
	},
	FormatCopy: {
		Owner: OwnerFormat, Name: "copy", Result: ResultBytes, Required: true, Code: errors.CodeGeneric,
		Mismatch: notString,
		Table: signature.MustBind(
			"osync_bool (OSyncObjFormat *format, const char *input, unsigned int inputsize, char **output, unsigned int *outputsize, void *user_data, OSyncError **error)",
			"format, input, user_data", formatOutputOuts),
	},
	FormatDuplicate: {
		Owner: OwnerFormat, Name: "duplicate", Result: ResultDuplicate, Required: true, Code: errors.CodeGeneric,
		Mismatch: notTriple,
		Table: signature.MustBind(
			"osync_bool (OSyncObjFormat *format, const char *uid, const char *input, unsigned int inputsize, char **newuid, char **output, unsigned int *outputsize, osync_bool *dirty, void *user_data, OSyncError **error)",
			"format, uid, input, user_data", "newuid, output, outputsize, dirty"),
	},
	FormatCreate: {
		Owner: OwnerFormat, Name: "create", Result: ResultBytes, Required: true, Code: errors.CodeGeneric,
		Mismatch: notString,
		Table: signature.MustBind(
			"osync_bool (OSyncObjFormat *format, char **data, unsigned int *size, void *user_data, OSyncError **error)",
			"format, user_data", "data, size"),
	},
	FormatDestroy: {
		Owner: OwnerFormat, Name: "destroy", Result: ResultBool, Required: true, Code: errors.CodeGeneric,
		Mismatch: notBool,
		Table: signature.MustBind(
			"osync_bool (OSyncObjFormat *format, char *data, unsigned int size, void *user_data, OSyncError **error)",
			formatDataIn, ""),
	},
	FormatPrint: {
		Owner: OwnerFormat, Name: "print", Result: ResultBytes, Required: true, Code: errors.CodeGeneric,
		Mismatch: notString,
		Table:    signature.MustBind("char * "+formatDataProto, formatDataIn, ""),
	},
	FormatRevision: {
		Owner: OwnerFormat, Name: "revision", Result: ResultInt, Required: true, Code: errors.CodeGeneric,
		Mismatch: notTime,
		Table:    signature.MustBind("time_t "+formatDataProto, formatDataIn, ""),
	},
	FormatMarshal: {
		Owner: OwnerFormat, Name: "marshal", Result: ResultBool, Required: true, Code: errors.CodeGeneric,
		Mismatch: notBool,
		Table: signature.MustBind(
			"osync_bool (OSyncObjFormat *format, const char *input, unsigned int inputsize, OSyncMarshal *marshal, void *user_data, OSyncError **error)",
			"format, input, marshal, user_data", ""),
	},
	FormatDemarshal: {
		Owner: OwnerFormat, Name: "demarshal", Result: ResultBytes, Required: true, Code: errors.CodeGeneric,
		Mismatch: notString,
		Table: signature.MustBind(
			"osync_bool (OSyncObjFormat *format, OSyncMarshal *marshal, char **output, unsigned int *outputsize, void *user_data, OSyncError **error)",
			"format, marshal, user_data", formatOutputOuts),
	},
	FormatValidate: {
		Owner: OwnerFormat, Name: "validate", Result: ResultBool, Required: true, Code: errors.CodeGeneric,
		Mismatch: notBool,
		Table:    signature.MustBind("osync_bool "+formatDataProto, formatDataIn, ""),
	},

	ConverterConvert: {
		Owner: OwnerConverter, Name: "convert", Result: ResultBytes, Required: true, Code: errors.CodeGeneric,
		Mismatch: notString,
		Table: signature.MustBind(
			"osync_bool (char *input, unsigned int inpsize, char **output, unsigned int *outpsize, osync_bool *free_input, const char *config, void *userdata, OSyncError **error)",
			"input, config, userdata", "output, outpsize, free_input"),
	},
	ConverterInitialize: {
		Owner: OwnerConverter, Name: "initialize", Result: ResultData, Code: errors.CodeGeneric,
		Table: signature.MustBind("void * (const char *config, OSyncError **error)", "config", ""),
	},
	ConverterFinalize: {
		Owner: OwnerConverter, Name: "finalize", Result: ResultVoid, Code: errors.CodeGeneric,
		Table: signature.MustBind("void (void *userdata)", "userdata", ""),
	},
}
