package robot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loginSuite = `*** Settings ***
Library           SeleniumLibrary
Library           Collections
Resource          common.resource

*** Variables ***
${URL}            https://example.test

*** Test Cases ***
Valid Login
    [Tags]    smoke    auth
    Open Browser    ${URL}    chrome
    Input Text    id=user    admin
    Click Button    id=submit
    Page Should Contain    Welcome

Invalid Login
    Open Browser    ${URL}    chrome
    ${msg} =    Get Text    id=error
    Should Be Equal    ${msg}    Invalid credentials
    FOR    ${i}    IN RANGE    3
        Click Button    id=retry
    END

*** Keywords ***
Open Login Page
    Go To    ${URL}
`

const apiResource = `*** Settings ***
Library    RequestsLibrary
Library    libs/CustomAssertions.py

*** Keywords ***
Check Status
    Status Should Be    200
`

func writeSuite(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t,
		os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestScanSuite(t *testing.T) {
	dir := t.TempDir()
	writeSuite(t, dir, "login.robot", loginSuite)
	writeSuite(t, dir, "api.resource", apiResource)
	writeSuite(t, dir, "notes.txt", "not a suite file")

	files, err := ScanSuite(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	// Sorted by relative path.
	assert.Equal(t, "api.resource", files[0].Path)
	assert.Equal(t, "login.robot", files[1].Path)

	api := files[0]
	assert.Equal(t, []string{"RequestsLibrary", "CustomAssertions"},
		api.Libraries)
	assert.Empty(t, api.Tests, "resource files have no test cases")
	assert.Greater(t, api.LineCount, 0)

	login := files[1]
	assert.Equal(t, []string{"SeleniumLibrary", "Collections"},
		login.Libraries)
	require.Len(t, login.Tests, 2)

	valid := login.Tests[0]
	assert.Equal(t, "Valid Login", valid.Name)
	// [Tags] is a setting, not a step.
	assert.Equal(t, []string{
		"Open Browser", "Input Text", "Click Button", "Page Should Contain",
	}, valid.Steps)

	invalid := login.Tests[1]
	assert.Equal(t, "Invalid Login", invalid.Name)
	// Assignment prefix and FOR/END structure are stripped; the loop
	// body keyword still counts.
	assert.Equal(t, []string{
		"Open Browser", "Get Text", "Should Be Equal", "Click Button",
	}, invalid.Steps)
}

func TestScanSuite_SkipsHiddenDirectories(t *testing.T) {
	dir := t.TempDir()
	hidden := filepath.Join(dir, ".git")
	require.NoError(t, os.MkdirAll(hidden, 0o755))
	writeSuite(t, hidden, "stray.robot", loginSuite)
	writeSuite(t, dir, "real.robot", loginSuite)

	files, err := ScanSuite(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "real.robot", files[0].Path)
}

func TestScanSuite_MissingDirectory(t *testing.T) {
	_, err := ScanSuite("/nonexistent/suite/path")
	require.Error(t, err)
}

func TestSplitCells(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "two spaces separate cells",
			line: "Input Text  id=user  admin",
			want: []string{"Input Text", "id=user", "admin"},
		},
		{
			name: "single spaces stay within a cell",
			line: "Should Be Equal    ${a}    ${b}",
			want: []string{"Should Be Equal", "${a}", "${b}"},
		},
		{
			name: "tabs act as separators",
			line: "Library\tSeleniumLibrary",
			want: []string{"Library", "SeleniumLibrary"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitCells(tt.line))
		})
	}
}
