package language

import "testing"

func TestFromCode(t *testing.T) {
	tests := []struct {
		code     string
		wantCode string
		wantName string
	}{
		{"en", "en", "English"},
		{"es", "es", "Spanish"},
		{"zh", "zh", "Chinese"},
		{"invalid", "", "Auto-detect"},
		{"", "", "Auto-detect"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := FromCode(tt.code)
			if got.Code != tt.wantCode {
				t.Errorf("FromCode(%q).Code = %q, want %q", tt.code, got.Code, tt.wantCode)
			}
			if got.Name != tt.wantName {
				t.Errorf("FromCode(%q).Name = %q, want %q", tt.code, got.Name, tt.wantName)
			}
		})
	}
}

func TestIsValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"en", true},
		{"es", true},
		{"zh", true},
		{"english", false},
		{"", true}, // auto is valid
		{"xx", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := IsValidCode(tt.code); got != tt.want {
				t.Errorf("IsValidCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestListExcludesAuto(t *testing.T) {
	list := List()
	if len(list) == 0 {
		t.Fatal("List() is empty")
	}
	for _, lang := range list {
		if lang.Code == "" {
			t.Error("List() must not contain the auto-detect entry")
		}
	}
}

func TestAuto(t *testing.T) {
	if Auto.Code != "" {
		t.Errorf("Auto.Code = %q, want empty string", Auto.Code)
	}
	if !IsValidCode(Auto.Code) {
		t.Error("the auto-detect code must validate")
	}
}
