package version

import (
	"runtime/debug"
	"testing"
)

func TestFillFromBuildInfo(t *testing.T) {
	t.Parallel()

	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}
	var info Info
	fillFromBuildInfo(&info, bi)
	if info.Version != "v0.3.1" || info.Commit != "0123456789abcdef0123" || info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("build info mismatch: got %+v", info)
	}

	linked := Info{Version: "v1.0.0", Commit: "feed"}
	fillFromBuildInfo(&linked, bi)
	if linked.Version != "v1.0.0" || linked.Commit != "feed" {
		t.Fatalf("linker values overwritten: got %+v", linked)
	}

	devel := Info{}
	fillFromBuildInfo(&devel, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if devel.Version != "" {
		t.Fatalf("devel version mismatch: got %q want empty", devel.Version)
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()

	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("short commit mismatch: got %q want %q", got, "0123456789ab")
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("short commit mismatch: got %q want %q", got, "abc")
	}
}
