package extract

import (
	"testing"
)

func TestMatchesFolders(t *testing.T) {
	scope := map[string]struct{}{"f1": {}, "f2": {}}
	tests := []struct {
		name    string
		payload map[string]any
		scope   map[string]struct{}
		want    bool
	}{
		{"no scope", map[string]any{"folder_id": "f9"}, nil, true},
		{"in scope", map[string]any{"folder_id": "f1"}, scope, true},
		{"out of scope", map[string]any{"folder_id": "f9"}, scope, false},
		{"unfoldered passes", map[string]any{"id": "u1"}, scope, true},
		{"numeric folder id", map[string]any{"folder_id": 2}, map[string]struct{}{"2": {}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFolders(tt.payload, tt.scope); got != tt.want {
				t.Errorf("matchesFolders() = %v, want %v", got, tt.want)
			}
		})
	}
}
