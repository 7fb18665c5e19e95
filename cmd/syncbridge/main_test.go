package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wippyai/syncbridge/callback"
	"github.com/wippyai/syncbridge/confine"
)

func TestParseChanges(t *testing.T) {
	changes, err := parseChanges([]string{"uid-1=BEGIN:VCARD", "uid-2="})
	if err != nil {
		t.Fatalf("parseChanges failed: %v", err)
	}
	var uids []string
	for _, c := range changes {
		uids = append(uids, c.UID)
	}
	if diff := cmp.Diff([]string{"uid-1", "uid-2"}, uids); diff != "" {
		t.Errorf("uids mismatch (-want +got):\n%s", diff)
	}
	if data, _ := changes[0].Field("data"); string(data) != "BEGIN:VCARD" {
		t.Errorf("data = %q", data)
	}

	for _, bad := range []string{"no-separator", "=data"} {
		if _, err := parseChanges([]string{bad}); err == nil {
			t.Errorf("parseChanges(%q) should fail", bad)
		}
	}
}

func TestFormatParams(t *testing.T) {
	got := formatParams(callback.Format.Compare.Signature())
	want := "(format: u32, leftdata: string, rightdata: string, user_data: u32)"
	if got != want {
		t.Errorf("formatParams = %q, want %q", got, want)
	}
}

func TestInitConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SYNCBRIDGE_PLUGIN_CONFIG", "from-env")

	file := filepath.Join(t.TempDir(), "syncbridge.yaml")
	if err := os.WriteFile(file, []byte("name: from-file\ntimeout: 5s\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		config string
		want   settings
	}{
		{"defaults", "", settings{Name: "plugin", Config: "from-env", Timeout: time.Second}},
		{"file", file, settings{Name: "from-file", Config: "from-env", Timeout: 5 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			cmd := &cobra.Command{}
			cmd.Flags().String("config", tt.config, "")
			cmd.Flags().String("name", "plugin", "")
			cmd.Flags().String("plugin-config", "", "")
			cmd.Flags().Duration("timeout", time.Second, "")

			if err := initConfig(v, cmd); err != nil {
				t.Fatalf("initConfig failed: %v", err)
			}
			got, err := loadSettings(v)
			if err != nil {
				t.Fatalf("loadSettings failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("settings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunCycle_Demo(t *testing.T) {
	s := settings{
		Name:      "demo",
		Changes:   []string{"uid-1=BEGIN:VCARD", "uid-2=END:VCARD"},
		Timeout:   10 * time.Second,
		StackSize: confine.DefaultStackSize,
		SlowSync:  true,
	}
	if err := runCycle(context.Background(), s); err != nil {
		t.Fatalf("runCycle failed: %v", err)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	p.step("contact: connect", "connected", nil)
	p.step("contact: read", "", os.ErrNotExist)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []string{"contact: connect ok connected", "contact: read failed " + os.ErrNotExist.Error()}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}
