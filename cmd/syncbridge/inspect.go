package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/signature"
)

func newInspectCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List callback slots and what the plugin registers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			printSlots(os.Stdout)
			if v.GetBool("slots-only") {
				return nil
			}
			return inspectPlugin(cmd.Context(), s, os.Stdout)
		},
	}
	cmd.Flags().Bool("slots-only", false, "list the callback slots without loading a plugin")
	return cmd
}

// printSlots writes one line per callback slot with its guest ABI.
func printSlots(w io.Writer) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SLOT", "REQUIRED", "RESULT", "PARAMS")
	for _, slot := range callback.All() {
		t.Row(strconv.Itoa(int(slot)), slot.String(), strconv.FormatBool(slot.Required()),
			slot.Result().String(), formatParams(slot.Signature()))
	}
	fmt.Fprintln(w, t.String())
}

func formatParams(t *signature.Table) string {
	var params []string
	for _, s := range t.In {
		types := s.Kind.ABI()
		names := make([]string, len(types))
		for i, typ := range types {
			names[i] = witTypeStr(typ)
		}
		params = append(params, s.Name+": "+strings.Join(names, ", "))
	}
	return "(" + strings.Join(params, ", ") + ")"
}

func inspectPlugin(ctx context.Context, s settings, w io.Writer) error {
	log, err := newLogger(s.Verbose)
	if err != nil {
		return err
	}
	b, err := openBridge(s, log)
	if err != nil {
		return err
	}
	out := newPrinter(w)
	sess, err := newSession(ctx, b, out)
	if err != nil {
		_ = b.Shutdown(ctx)
		return err
	}
	defer func() { _ = sess.close(ctx, out) }()

	if err := sess.initialize(ctx, s.Config, out); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nRegistered:")
	list := func(kind string, name string, keys []string) {
		fmt.Fprintf(w, "  %s %q: %s\n", kind, name, strings.Join(keys, ", "))
	}
	reg := b.Registry()
	for _, p := range sess.env.Plugins() {
		list("plugin", p.Name, reg.Keys(p.Owner))
		for _, sink := range sess.infos[p.Owner].Sinks() {
			list("  sink", sink.Name, reg.Keys(sink.Owner))
		}
	}
	for _, f := range sess.env.Formats() {
		list("format", f.Name, reg.Keys(f.Owner))
	}
	for _, c := range sess.env.Converters() {
		list("converter", c.Name, reg.Keys(c.Owner))
	}
	return nil
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.String:
		return "string"
	default:
		return fmt.Sprintf("%T", t)
	}
}
