package version

import (
	"strings"
	"testing"
)

func TestBannerPlain(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	for _, v := range []string{"0.1.0-dev", "1.2.3", "1.2.3-rc.1+build.123", "dev"} {
		Version = v
		if got := Banner(false); got != v {
			t.Errorf("Banner(false) with %q = %q", v, got)
		}
	}
}

func TestBannerColored(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	Version = "1.2.3-rc.1"
	got := Banner(true)
	if !strings.Contains(got, "\x1b[") || !strings.HasSuffix(got, "-rc.1") {
		t.Errorf("Banner(true) = %q", got)
	}
	for _, n := range []string{"1", "2", "3"} {
		if !strings.Contains(got, n) {
			t.Errorf("Banner(true) = %q lacks %s", got, n)
		}
	}
}

func TestOverride(t *testing.T) {
	origCommit, origDate := GitCommit, BuildDate
	defer func() { GitCommit, BuildDate = origCommit, origDate }()

	GitCommit = "abc123def456"
	BuildDate = "2024-01-15T10:30:00Z"
	if GitCommit != "abc123def456" || BuildDate != "2024-01-15T10:30:00Z" {
		t.Errorf("overrides not kept: %q %q", GitCommit, BuildDate)
	}
}
