package watgen

import (
	_ "embed"
	"sync"
)

// Demo plugin constants.
const (
	DemoPluginData = 42
	DemoSinkData   = 7
	DemoFormatData = 9
)

//go:embed demo.wat
var demoSource string

var demo = sync.OnceValue(func() []byte {
	return MustCompile(demoSource, struct{ PluginData, SinkData, FormatData int }{
		DemoPluginData, DemoSinkData, DemoFormatData,
	})
})

// Demo returns a guest plugin exercising every owner kind:
//
//	get_sync_info       plugin "demo" with initialize, finalize, discover
//	plugin_initialize   sink "contact" with connect, disconnect,
//	                    get_changes, commit, read (raises), sync_done
//	get_format_info     format "demo-text" with initialize, compare,
//	                    copy, print, duplicate, revision, validate
//	get_conversion_info converter "demo-identity" with convert
//
// The returned slice is shared and must not be modified.
func Demo() []byte {
	return demo()
}
