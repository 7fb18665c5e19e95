package callback

// PluginSlots lists the callbacks of a plugin.
type PluginSlots struct {
	Initialize, Finalize, Discover Slot
}

// SinkSlots lists the callbacks of an object type sink.
type SinkSlots struct {
	Connect, Disconnect, GetChanges, Commit, CommittedAll, Read, SyncDone, ConnectDone Slot
}

// FormatSlots lists the callbacks of an object format.
type FormatSlots struct {
	Initialize, Finalize, Compare, Copy, Duplicate, Create, Destroy, Print, Revision, Marshal, Demarshal, Validate Slot
}

// ConverterSlots lists the callbacks of a format converter.
type ConverterSlots struct {
	Convert, Initialize, Finalize Slot
}

var (
	Plugin = PluginSlots{
		Initialize: PluginInitialize,
		Finalize:   PluginFinalize,
		Discover:   PluginDiscover,
	}
	Sink = SinkSlots{
		Connect:      SinkConnect,
		Disconnect:   SinkDisconnect,
		GetChanges:   SinkGetChanges,
		Commit:       SinkCommit,
		CommittedAll: SinkCommittedAll,
		Read:         SinkRead,
		SyncDone:     SinkSyncDone,
		ConnectDone:  SinkConnectDone,
	}
	Format = FormatSlots{
		Initialize: FormatInitialize,
		Finalize:   FormatFinalize,
		Compare:    FormatCompare,
		Copy:       FormatCopy,
		Duplicate:  FormatDuplicate,
		Create:     FormatCreate,
		Destroy:    FormatDestroy,
		Print:      FormatPrint,
		Revision:   FormatRevision,
		Marshal:    FormatMarshal,
		Demarshal:  FormatDemarshal,
		Validate:   FormatValidate,
	}
	Converter = ConverterSlots{
		Convert:    ConverterConvert,
		Initialize: ConverterInitialize,
		Finalize:   ConverterFinalize,
	}
)

// DataKey is the registry key of an owner's user data.
const DataKey = "data"

// KindKey is the registry key recording an owner's kind.
const KindKey = "kind"
