package utils

import (
	"reflect"
	"testing"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "long token", token: "eyJhbGciOiJIUzI1NiJ9.payload.sig", want: "eyJh....sig"},
		{name: "short token", token: "abcd", want: "****"},
		{name: "boundary length", token: "12345678", want: "********"},
		{name: "empty", token: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskToken(tt.token); got != tt.want {
				t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("E2BRIDGE_TEST_VAR", "set")
	if got := GetEnvWithDefault("E2BRIDGE_TEST_VAR", "fallback"); got != "set" {
		t.Errorf("GetEnvWithDefault = %q, want set", got)
	}
	t.Setenv("E2BRIDGE_TEST_VAR", "")
	if got := GetEnvWithDefault("E2BRIDGE_TEST_VAR", "fallback"); got != "fallback" {
		t.Errorf("GetEnvWithDefault = %q, want fallback", got)
	}
}

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "plain", value: "a,b,c", want: []string{"a", "b", "c"}},
		{name: "whitespace", value: " a , b ,c ", want: []string{"a", "b", "c"}},
		{name: "empty entries", value: "a,,b,", want: []string{"a", "b"}},
		{name: "empty value", value: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitCSV(tt.value); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCSV(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
