package main

import (
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

func TestParseContentTypes(t *testing.T) {
	all, err := parseContentTypes(nil)
	if err != nil {
		t.Fatalf("empty input: %v", err)
	}
	if len(all) != len(types.AllContentTypes()) {
		t.Errorf("empty input should mean every type, got %d", len(all))
	}

	cts, err := parseContentTypes([]string{"dashboard", " look ", "dashboard"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cts) != 2 || cts[0] != types.TypeDashboard || cts[1] != types.TypeLook {
		t.Errorf("got %v, want deduped [DASHBOARD LOOK]", cts)
	}

	if _, err := parseContentTypes([]string{"gadget"}); err == nil {
		t.Error("unknown type should error")
	}
}

func TestIsNoStoreCommand(t *testing.T) {
	for _, tt := range []struct {
		path []string
		want bool
	}{
		{[]string{"ping"}, true},
		{[]string{"config", "init"}, true},
		{[]string{"config", "show"}, true},
		{[]string{"extract"}, false},
		{[]string{"restore", "bulk"}, false},
		{[]string{"status"}, false},
	} {
		cmd, _, err := rootCmd.Find(tt.path)
		if err != nil {
			t.Fatalf("find %v: %v", tt.path, err)
		}
		if got := isNoStoreCommand(cmd); got != tt.want {
			t.Errorf("isNoStoreCommand(%v) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
