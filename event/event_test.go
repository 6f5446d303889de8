package event

import "testing"

func TestParseRole(t *testing.T) {
	tests := []struct {
		in     string
		want   Role
		wantOK bool
	}{
		{"user", RoleUser, true},
		{"llm", RoleAssistant, true},
		{"assistant", RoleAssistant, true},
		{" Error ", RoleError, true},
		{"warning", RoleWarning, true},
		{"tool_json_start", RoleToolJSONStart, true},
		{"tool_json_args", RoleToolJSONArgs, true},
		{"tool_json_end", RoleToolJSONEnd, true},
		{"system", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRole(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRoleIsTool(t *testing.T) {
	for _, r := range []Role{RoleToolJSONStart, RoleToolJSONArgs, RoleToolJSONEnd} {
		if !r.IsTool() {
			t.Errorf("%q.IsTool() = false", r)
		}
	}
	for _, r := range []Role{RoleUser, RoleAssistant, RoleError, RoleWarning} {
		if r.IsTool() {
			t.Errorf("%q.IsTool() = true", r)
		}
	}
}

func TestEventsCarryKeys(t *testing.T) {
	events := []Event{
		ContentEvent{Key: "/a"},
		Finished{Key: "/a"},
		ChatFilesInfo{Key: "/a"},
	}
	for _, ev := range events {
		if ev.SessionKey() != "/a" {
			t.Errorf("%T.SessionKey() = %q", ev, ev.SessionKey())
		}
	}
	if !(Finished{Status: "success"}).Succeeded() {
		t.Error("success status should report Succeeded")
	}
}
