package robot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveLibrary(t *testing.T) {
	tests := []struct {
		name    string
		keyword string
		want    string
	}{
		{
			name:    "builtin assertion keyword",
			keyword: "Should Be Equal",
			want:    "BuiltIn",
		},
		{
			name:    "case insensitive match",
			keyword: "should be equal",
			want:    "BuiltIn",
		},
		{
			name:    "mixed case match",
			keyword: "SHOULD CONTAIN",
			want:    "BuiltIn",
		},
		{
			name:    "collections keyword",
			keyword: "Append To List",
			want:    "Collections",
		},
		{
			name:    "selenium keyword",
			keyword: "Open Browser",
			want:    "SeleniumLibrary",
		},
		{
			name:    "requests keyword",
			keyword: "Get On Session",
			want:    "RequestsLibrary",
		},
		{
			name:    "qualified call resolves through prefix",
			keyword: "Collections.Append To List",
			want:    "Collections",
		},
		{
			name:    "qualified call with lowercase prefix",
			keyword: "builtin.Log",
			want:    "BuiltIn",
		},
		{
			name:    "unrecognized keyword",
			keyword: "My Custom Business Keyword",
			want:    UnknownLibrary,
		},
		{
			name:    "empty keyword",
			keyword: "",
			want:    UnknownLibrary,
		},
		{
			name:    "whitespace only",
			keyword: "   ",
			want:    UnknownLibrary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveLibrary(tt.keyword))
		})
	}
}

func TestResolveLibrary_AmbiguousNamesAreDeterministic(t *testing.T) {
	// "Get Text" exists in SeleniumLibrary, AppiumLibrary, and Browser;
	// priority order must pin the answer.
	first := ResolveLibrary("Get Text")
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, ResolveLibrary("Get Text"))
	}

	assert.Equal(t, "SeleniumLibrary", first)

	// "Close Connection" is Telnet before SSHLibrary.
	assert.Equal(t, "Telnet", ResolveLibrary("Close Connection"))
}

func TestIsAssertion(t *testing.T) {
	tests := []struct {
		keyword string
		want    bool
	}{
		{"Should Be Equal", true},
		{"Should Contain", true},
		{"should not be empty", true},
		{"Page Should Contain Element", true},
		{"Element Text Should Be", true},
		{"Lists Should Be Equal", true},
		{"BuiltIn.Should Be True", true},
		{"Log", false},
		{"Click Button", false},
		{"Open Browser", false},
		{"Shoulder Press", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAssertion(tt.keyword))
		})
	}
}
