package version

import (
	"strings"
	"testing"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version != Version || info.Commit != Commit {
		t.Errorf("GetInfo() did not copy linker variables: %+v", info)
	}
	if !strings.Contains(info.String(), "Go Version:") {
		t.Errorf("String() missing Go version line: %s", info.String())
	}
	if !strings.HasPrefix(info.Short(), "tether ") {
		t.Errorf("Short() = %q", info.Short())
	}
}
