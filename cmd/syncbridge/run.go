package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/syncbridge/bridge"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulated sync cycle against the plugin",
		Long: `Loads the plugin, initializes it and drives every sink through
connect, get_changes, commit, sync_done and disconnect. Each --change is
committed to every sink, validated by every format and converted by every
converter.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			return runCycle(cmd.Context(), s)
		},
	}
	cmd.Flags().StringSlice("change", []string{"uid-1=BEGIN:VCARD"}, "change to commit as uid=data")
	cmd.Flags().Bool("slow-sync", false, "request a slow sync")
	return cmd
}

func runCycle(ctx context.Context, s settings) error {
	log, err := newLogger(s.Verbose)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	changes, err := parseChanges(s.Changes)
	if err != nil {
		return err
	}
	b, err := openBridge(s, log)
	if err != nil {
		return err
	}
	out := newPrinter(os.Stdout)

	sess, err := newSession(ctx, b, out)
	if err != nil {
		_ = b.Shutdown(ctx)
		return err
	}
	defer func() { _ = sess.close(ctx, out) }()

	if err := sess.initialize(ctx, s.Config, out); err != nil {
		return err
	}
	for _, p := range sess.env.Plugins() {
		info := sess.infos[p.Owner]
		ok, err := b.Plugin(p.Owner).Discover(ctx, info)
		out.step(p.Name+": discover", fmt.Sprint(ok), err)

		g, gctx := errgroup.WithContext(ctx)
		for _, sink := range info.Sinks() {
			g.Go(func() error {
				return syncSink(gctx, b, info, sink, changes, s.SlowSync, out)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, f := range sess.env.Formats() {
		if err := checkFormat(ctx, b, f, changes, out); err != nil {
			return err
		}
	}
	for _, c := range sess.env.Converters() {
		conv := b.Converter(c.Owner)
		if _, err := conv.Initialize(ctx, s.Config); err != nil {
			out.step(c.Name+": initialize", "", err)
			return err
		}
		for _, ch := range changes {
			data, _ := ch.Field("data")
			converted, err := conv.Convert(ctx, data, s.Config)
			out.step(c.Name+": convert "+ch.UID, fmt.Sprintf("%d bytes", len(converted)), err)
		}
		if err := conv.Finalize(ctx); err != nil {
			out.step(c.Name+": finalize", "", err)
		}
	}
	return nil
}

type action struct {
	name string
	fn   func() error
}

func syncSink(ctx context.Context, b *bridge.Bridge, info *bridge.PluginInfo, r bridge.Registered, changes []*bridge.Change, slow bool, out *printer) error {
	sink := b.Sink(r.Owner)
	sc := bridge.NewContext()
	label := r.Name + ": "

	steps := []action{
		{"connect", func() error { return sink.Connect(ctx, info, sc) }},
		{"connect_done", func() error { return sink.ConnectDone(ctx, info, sc, slow) }},
		{"get_changes", func() error { return sink.GetChanges(ctx, info, sc, slow) }},
	}
	for _, ch := range changes {
		steps = append(steps, action{"commit " + ch.UID, func() error { return sink.Commit(ctx, info, sc, ch) }})
	}
	steps = append(steps,
		action{"committed_all", func() error { return sink.CommittedAll(ctx, info, sc) }},
		action{"sync_done", func() error { return sink.SyncDone(ctx, info, sc) }},
		action{"disconnect", func() error { return sink.Disconnect(ctx, info, sc) }},
	)

	for _, st := range steps {
		before := len(sc.Reports())
		err := st.fn()
		detail := ""
		if reports := sc.Reports(); len(reports) > before {
			detail = reports[len(reports)-1].Message
		}
		out.step(label+st.name, detail, err)
		if err != nil {
			return err
		}
	}
	return sc.Err()
}

func checkFormat(ctx context.Context, b *bridge.Bridge, r bridge.Registered, changes []*bridge.Change, out *printer) error {
	f := b.Format(r.Owner)
	label := r.Name + ": "
	if _, err := f.Initialize(ctx); err != nil {
		out.step(label+"initialize", "", err)
		return err
	}
	for _, ch := range changes {
		data, _ := ch.Field("data")
		ok, err := f.Validate(ctx, data)
		out.step(label+"validate "+ch.UID, fmt.Sprint(ok), err)
		if rev, err := f.Revision(ctx, data); err == nil {
			out.step(label+"revision "+ch.UID, fmt.Sprint(rev), nil)
		}
		if text, err := f.Print(ctx, data); err == nil {
			out.step(label+"print "+ch.UID, text, nil)
		}
	}
	_, err := f.Finalize(ctx)
	out.step(label+"finalize", "", err)
	return err
}
