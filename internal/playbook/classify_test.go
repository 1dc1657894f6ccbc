package playbook

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		verdict string
		action  Action
		want    MemoryType
	}{
		{"True", ActionAdd, MemoryTrust},
		{"True", ActionUpdate, MemoryTrust},
		{"True", ActionRefine, MemoryTrust},
		{"True", ActionDeprecate, MemoryTrust},
		{"False", ActionAdd, MemoryDetection},
		{"Unverifiable", ActionAdd, MemoryDetection},
		{"true", ActionAdd, MemoryDetection}, // verdict match is literal
		{"", ActionAdd, MemoryDetection},
		{"True", ActionNone, MemoryDetection}, // no_action never routes to trust
		{"False", ActionNone, MemoryDetection},
	}

	for _, tt := range tests {
		if got := Classify(tt.verdict, tt.action); got != tt.want {
			t.Errorf("Classify(%q, %s) = %s, want %s", tt.verdict, tt.action, got, tt.want)
		}
	}
}
