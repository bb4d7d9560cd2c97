// Package robot provides Robot Framework domain knowledge: the static
// keyword-to-library catalog and a filesystem scanner for test suite
// source files.
package robot

import "strings"

// UnknownLibrary is returned when a keyword cannot be attributed.
const UnknownLibrary = "Unknown"

// ResolveLibrary maps a keyword name to its owning library. Matching is
// case-insensitive on the full keyword name. Qualified names such as
// "Collections.Append To List" resolve through their prefix. Returns
// UnknownLibrary on a miss. Pure function over static data.
func ResolveLibrary(keyword string) string {
	name := strings.TrimSpace(keyword)
	if name == "" {
		return UnknownLibrary
	}

	if lib, ok := keywordIndex[strings.ToLower(name)]; ok {
		return lib
	}

	// Qualified call: "Library.Keyword Name".
	if idx := strings.Index(name, "."); idx > 0 {
		prefix := strings.ToLower(name[:idx])
		if canonical, ok := libraryIndex[prefix]; ok {
			return canonical
		}

		if lib, ok := keywordIndex[strings.ToLower(name[idx+1:])]; ok {
			return lib
		}
	}

	return UnknownLibrary
}

// CanonicalLibrary returns the catalog's canonical spelling for a
// library name, or the name unchanged when it is not a known library.
func CanonicalLibrary(name string) string {
	if canonical, ok := libraryIndex[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canonical
	}

	return strings.TrimSpace(name)
}

// IsAssertion reports whether a keyword is a verification-style keyword.
// The "Should ..." family covers the standard and Selenium verification
// keywords ("Should Be Equal", "Page Should Contain", ...).
func IsAssertion(keyword string) bool {
	lower := strings.ToLower(strings.TrimSpace(keyword))
	if lower == "" {
		return false
	}

	// Strip a library qualifier.
	if idx := strings.Index(lower, "."); idx > 0 {
		if _, ok := libraryIndex[lower[:idx]]; ok {
			lower = lower[idx+1:]
		}
	}

	for _, word := range strings.Fields(lower) {
		if word == "should" {
			return true
		}
	}

	return false
}

// libraryPriority fixes the resolution order for keyword names that
// exist in more than one library (e.g. "Get Text" is both Selenium and
// Browser). Standard libraries win over external ones.
var libraryPriority = []string{
	"BuiltIn",
	"Collections",
	"String",
	"OperatingSystem",
	"Process",
	"DateTime",
	"Screenshot",
	"Dialogs",
	"XML",
	"Telnet",
	"SeleniumLibrary",
	"RequestsLibrary",
	"SSHLibrary",
	"DatabaseLibrary",
	"AppiumLibrary",
	"Browser",
}

// keywordIndex maps lowercased keyword names to their canonical library.
// Built once from libraryKeywords in priority order so ambiguous names
// resolve deterministically.
var keywordIndex = func() map[string]string {
	idx := make(map[string]string, 1024)

	for _, lib := range libraryPriority {
		for _, kw := range libraryKeywords[lib] {
			key := strings.ToLower(kw)
			if _, exists := idx[key]; !exists {
				idx[key] = lib
			}
		}
	}

	return idx
}()

// libraryIndex maps lowercased library names to their canonical form.
var libraryIndex = func() map[string]string {
	idx := make(map[string]string, len(libraryKeywords))

	for lib := range libraryKeywords {
		idx[strings.ToLower(lib)] = lib
	}

	return idx
}()

// libraryKeywords is the static catalog of well-known keywords per
// library. Some report formats omit the owning library on keyword
// records; this table fills the gap.
var libraryKeywords = map[string][]string{
	"BuiltIn": {
		"Call Method",
		"Catenate",
		"Comment",
		"Continue For Loop",
		"Continue For Loop If",
		"Convert To Binary",
		"Convert To Boolean",
		"Convert To Bytes",
		"Convert To Hex",
		"Convert To Integer",
		"Convert To Number",
		"Convert To Octal",
		"Convert To String",
		"Create Dictionary",
		"Create List",
		"Evaluate",
		"Exit For Loop",
		"Exit For Loop If",
		"Fail",
		"Fatal Error",
		"Get Count",
		"Get Length",
		"Get Library Instance",
		"Get Time",
		"Get Variable Value",
		"Get Variables",
		"Import Library",
		"Import Resource",
		"Import Variables",
		"Keyword Should Exist",
		"Length Should Be",
		"Log",
		"Log Many",
		"Log To Console",
		"Log Variables",
		"No Operation",
		"Pass Execution",
		"Pass Execution If",
		"Regexp Escape",
		"Reload Library",
		"Remove Tags",
		"Repeat Keyword",
		"Replace Variables",
		"Return From Keyword",
		"Return From Keyword If",
		"Run Keyword",
		"Run Keyword And Continue On Failure",
		"Run Keyword And Expect Error",
		"Run Keyword And Ignore Error",
		"Run Keyword And Return",
		"Run Keyword And Return If",
		"Run Keyword And Return Status",
		"Run Keyword And Warn On Failure",
		"Run Keyword If",
		"Run Keyword If All Tests Passed",
		"Run Keyword If Any Tests Failed",
		"Run Keyword If Test Failed",
		"Run Keyword If Test Passed",
		"Run Keyword If Timeout Occurred",
		"Run Keyword Unless",
		"Run Keywords",
		"Set Global Variable",
		"Set Library Search Order",
		"Set Local Variable",
		"Set Log Level",
		"Set Suite Documentation",
		"Set Suite Metadata",
		"Set Suite Variable",
		"Set Tags",
		"Set Task Variable",
		"Set Test Documentation",
		"Set Test Message",
		"Set Test Variable",
		"Set Variable",
		"Set Variable If",
		"Should Be Empty",
		"Should Be Equal",
		"Should Be Equal As Integers",
		"Should Be Equal As Numbers",
		"Should Be Equal As Strings",
		"Should Be True",
		"Should Contain",
		"Should Contain Any",
		"Should Contain X Times",
		"Should End With",
		"Should Match",
		"Should Match Regexp",
		"Should Not Be Empty",
		"Should Not Be Equal",
		"Should Not Be Equal As Integers",
		"Should Not Be Equal As Numbers",
		"Should Not Be Equal As Strings",
		"Should Not Be True",
		"Should Not Contain",
		"Should Not Contain Any",
		"Should Not End With",
		"Should Not Match",
		"Should Not Match Regexp",
		"Should Not Start With",
		"Should Start With",
		"Skip",
		"Skip If",
		"Sleep",
		"Variable Should Exist",
		"Variable Should Not Exist",
		"Wait Until Keyword Succeeds",
	},
	"Collections": {
		"Append To List",
		"Combine Lists",
		"Convert To Dictionary",
		"Convert To List",
		"Copy Dictionary",
		"Copy List",
		"Count Values In List",
		"Dictionaries Should Be Equal",
		"Dictionary Should Contain Item",
		"Dictionary Should Contain Key",
		"Dictionary Should Contain Sub Dictionary",
		"Dictionary Should Contain Value",
		"Dictionary Should Not Contain Key",
		"Dictionary Should Not Contain Value",
		"Get Dictionary Items",
		"Get Dictionary Keys",
		"Get Dictionary Values",
		"Get From Dictionary",
		"Get From List",
		"Get Index From List",
		"Get Match Count",
		"Get Matches",
		"Get Slice From List",
		"Insert Into List",
		"Keep In Dictionary",
		"List Should Contain Sub List",
		"List Should Contain Value",
		"List Should Not Contain Duplicates",
		"List Should Not Contain Value",
		"Lists Should Be Equal",
		"Log Dictionary",
		"Log List",
		"Pop From Dictionary",
		"Remove Duplicates",
		"Remove From Dictionary",
		"Remove From List",
		"Remove Values From List",
		"Reverse List",
		"Set List Value",
		"Set To Dictionary",
		"Should Contain Match",
		"Should Not Contain Match",
		"Sort List",
	},
	"String": {
		"Convert To Lower Case",
		"Convert To Title Case",
		"Convert To Upper Case",
		"Decode Bytes To String",
		"Encode String To Bytes",
		"Fetch From Left",
		"Fetch From Right",
		"Format String",
		"Generate Random String",
		"Get Line",
		"Get Line Count",
		"Get Lines Containing String",
		"Get Lines Matching Pattern",
		"Get Lines Matching Regexp",
		"Get Regexp Matches",
		"Get Substring",
		"Remove String",
		"Remove String Using Regexp",
		"Replace String",
		"Replace String Using Regexp",
		"Should Be Byte String",
		"Should Be Lower Case",
		"Should Be String",
		"Should Be Title Case",
		"Should Be Unicode String",
		"Should Be Upper Case",
		"Should Not Be String",
		"Split String",
		"Split String From Right",
		"Split String To Characters",
		"Split To Lines",
		"Strip String",
	},
	"OperatingSystem": {
		"Append To Environment Variable",
		"Append To File",
		"Copy Directory",
		"Copy File",
		"Copy Files",
		"Count Directories In Directory",
		"Count Files In Directory",
		"Count Items In Directory",
		"Create Binary File",
		"Create Directory",
		"Create File",
		"Directory Should Be Empty",
		"Directory Should Exist",
		"Directory Should Not Be Empty",
		"Directory Should Not Exist",
		"Empty Directory",
		"Environment Variable Should Be Set",
		"Environment Variable Should Not Be Set",
		"File Should Be Empty",
		"File Should Exist",
		"File Should Not Be Empty",
		"File Should Not Exist",
		"Get Binary File",
		"Get Environment Variable",
		"Get Environment Variables",
		"Get File",
		"Get File Size",
		"Get Modified Time",
		"Grep File",
		"Join Path",
		"Join Paths",
		"List Directories In Directory",
		"List Directory",
		"List Files In Directory",
		"Log Environment Variables",
		"Log File",
		"Move Directory",
		"Move File",
		"Move Files",
		"Normalize Path",
		"Remove Directory",
		"Remove Environment Variable",
		"Remove File",
		"Remove Files",
		"Run And Return Rc",
		"Run And Return Rc And Output",
		"Set Environment Variable",
		"Set Modified Time",
		"Split Extension",
		"Split Path",
		"Touch",
		"Wait Until Created",
		"Wait Until Removed",
	},
	"Process": {
		"Get Process Id",
		"Get Process Object",
		"Get Process Result",
		"Is Process Running",
		"Join Command Line",
		"Process Should Be Running",
		"Process Should Be Stopped",
		"Run Process",
		"Send Signal To Process",
		"Split Command Line",
		"Start Process",
		"Switch Process",
		"Terminate All Processes",
		"Terminate Process",
		"Wait For Process",
	},
	"DateTime": {
		"Add Time To Date",
		"Add Time To Time",
		"Convert Date",
		"Convert Time",
		"Get Current Date",
		"Subtract Date From Date",
		"Subtract Time From Date",
		"Subtract Time From Time",
	},
	"Screenshot": {
		"Set Screenshot Directory",
		"Take Screenshot",
		"Take Screenshot Without Embedding",
	},
	"Dialogs": {
		"Execute Manual Step",
		"Get Selection From User",
		"Get Selections From User",
		"Get Value From User",
		"Pause Execution",
	},
	"XML": {
		"Add Element",
		"Clear Element",
		"Copy Element",
		"Element Attribute Should Be",
		"Element Attribute Should Match",
		"Element Should Exist",
		"Element Should Not Exist",
		"Element Should Not Have Attribute",
		"Element Text Should Be",
		"Element Text Should Match",
		"Element To String",
		"Elements Should Be Equal",
		"Elements Should Match",
		"Evaluate Xpath",
		"Get Child Elements",
		"Get Element",
		"Get Element Attribute",
		"Get Element Attributes",
		"Get Element Count",
		"Get Element Text",
		"Get Elements",
		"Get Elements Texts",
		"Log Element",
		"Parse Xml",
		"Remove Element",
		"Remove Element Attribute",
		"Remove Element Attributes",
		"Remove Elements",
		"Save Xml",
		"Set Element Attribute",
		"Set Element Tag",
		"Set Element Text",
	},
	"Telnet": {
		"Close All Connections",
		"Close Connection",
		"Execute Command",
		"Login",
		"Open Connection",
		"Read",
		"Read Until",
		"Read Until Prompt",
		"Read Until Regexp",
		"Set Prompt",
		"Set Timeout",
		"Switch Connection",
		"Write",
		"Write Bare",
		"Write Until Expected Output",
	},
	"SeleniumLibrary": {
		"Add Cookie",
		"Alert Should Be Present",
		"Alert Should Not Be Present",
		"Capture Element Screenshot",
		"Capture Page Screenshot",
		"Checkbox Should Be Selected",
		"Checkbox Should Not Be Selected",
		"Clear Element Text",
		"Click Button",
		"Click Element",
		"Click Element At Coordinates",
		"Click Image",
		"Click Link",
		"Close All Browsers",
		"Close Browser",
		"Close Window",
		"Current Frame Should Contain",
		"Current Frame Should Not Contain",
		"Delete All Cookies",
		"Delete Cookie",
		"Double Click Element",
		"Drag And Drop",
		"Drag And Drop By Offset",
		"Element Should Be Disabled",
		"Element Should Be Enabled",
		"Element Should Be Focused",
		"Element Should Be Visible",
		"Element Should Contain",
		"Element Should Not Be Visible",
		"Element Should Not Contain",
		"Element Text Should Be",
		"Element Text Should Not Be",
		"Execute Async Javascript",
		"Execute Javascript",
		"Get Cookie",
		"Get Cookies",
		"Get Element Attribute",
		"Get Element Count",
		"Get Element Size",
		"Get Location",
		"Get Selected List Label",
		"Get Selected List Value",
		"Get Source",
		"Get Text",
		"Get Title",
		"Get Value",
		"Get WebElement",
		"Get WebElements",
		"Get Window Handles",
		"Get Window Titles",
		"Go Back",
		"Go To",
		"Handle Alert",
		"Input Password",
		"Input Text",
		"Input Text Into Alert",
		"List Selection Should Be",
		"List Should Have No Selections",
		"Location Should Be",
		"Location Should Contain",
		"Maximize Browser Window",
		"Mouse Down",
		"Mouse Out",
		"Mouse Over",
		"Mouse Up",
		"Open Browser",
		"Page Should Contain",
		"Page Should Contain Button",
		"Page Should Contain Checkbox",
		"Page Should Contain Element",
		"Page Should Contain Image",
		"Page Should Contain Link",
		"Page Should Contain List",
		"Page Should Contain Radio Button",
		"Page Should Contain Textfield",
		"Page Should Not Contain",
		"Page Should Not Contain Element",
		"Press Key",
		"Press Keys",
		"Radio Button Should Be Set To",
		"Radio Button Should Not Be Selected",
		"Reload Page",
		"Scroll Element Into View",
		"Select All From List",
		"Select Checkbox",
		"Select Frame",
		"Select From List By Index",
		"Select From List By Label",
		"Select From List By Value",
		"Select Radio Button",
		"Set Browser Implicit Wait",
		"Set Selenium Implicit Wait",
		"Set Selenium Speed",
		"Set Selenium Timeout",
		"Set Window Position",
		"Set Window Size",
		"Submit Form",
		"Switch Browser",
		"Switch Window",
		"Table Cell Should Contain",
		"Table Column Should Contain",
		"Table Footer Should Contain",
		"Table Header Should Contain",
		"Table Row Should Contain",
		"Table Should Contain",
		"Textarea Should Contain",
		"Textarea Value Should Be",
		"Textfield Should Contain",
		"Textfield Value Should Be",
		"Title Should Be",
		"Unselect Checkbox",
		"Unselect Frame",
		"Wait For Condition",
		"Wait Until Element Contains",
		"Wait Until Element Does Not Contain",
		"Wait Until Element Is Enabled",
		"Wait Until Element Is Not Visible",
		"Wait Until Element Is Visible",
		"Wait Until Location Is",
		"Wait Until Page Contains",
		"Wait Until Page Contains Element",
		"Wait Until Page Does Not Contain",
		"Wait Until Page Does Not Contain Element",
	},
	"RequestsLibrary": {
		"Create Client Cert Session",
		"Create Custom Session",
		"Create Digest Session",
		"Create Ntlm Session",
		"Create Session",
		"Delete All Sessions",
		"Delete On Session",
		"Get On Session",
		"Head On Session",
		"Options On Session",
		"Patch On Session",
		"Post On Session",
		"Put On Session",
		"Request Should Be Successful",
		"Session Exists",
		"Status Should Be",
	},
	"SSHLibrary": {
		"Close All Connections",
		"Close Connection",
		"Create Local Ssh Tunnel",
		"Directory Should Exist",
		"Directory Should Not Exist",
		"Enable Ssh Logging",
		"Execute Command",
		"File Should Exist",
		"File Should Not Exist",
		"Get Connection",
		"Get Connections",
		"Get Directory",
		"Get File",
		"List Directories In Directory",
		"List Directory",
		"List Files In Directory",
		"Login",
		"Login With Public Key",
		"Open Connection",
		"Put Directory",
		"Put File",
		"Read",
		"Read Command Output",
		"Read Until",
		"Read Until Prompt",
		"Read Until Regexp",
		"Set Client Configuration",
		"Set Default Configuration",
		"Start Command",
		"Switch Connection",
		"Write",
		"Write Bare",
		"Write Until Expected Output",
	},
	"DatabaseLibrary": {
		"Call Stored Procedure",
		"Check If Exists In Database",
		"Check If Not Exists In Database",
		"Connect To Database",
		"Connect To Database Using Custom Params",
		"Delete All Rows From Table",
		"Description",
		"Disconnect From Database",
		"Execute Sql Script",
		"Execute Sql String",
		"Query",
		"Row Count",
		"Row Count Is 0",
		"Row Count Is Equal To X",
		"Row Count Is Greater Than X",
		"Row Count Is Less Than X",
		"Table Must Exist",
	},
	"AppiumLibrary": {
		"Background App",
		"Clear Text",
		"Click A Point",
		"Click Element",
		"Close All Applications",
		"Close Application",
		"Element Attribute Should Match",
		"Element Name Should Be",
		"Element Should Be Disabled",
		"Element Should Be Enabled",
		"Element Should Be Visible",
		"Element Should Contain Text",
		"Element Should Not Contain Text",
		"Get Activity",
		"Get Contexts",
		"Get Current Context",
		"Get Element Attribute",
		"Get Element Location",
		"Get Element Size",
		"Get Source",
		"Get Text",
		"Hide Keyboard",
		"Input Text",
		"Install App",
		"Landscape",
		"Launch Application",
		"Lock",
		"Long Press",
		"Open Application",
		"Page Should Contain Element",
		"Page Should Contain Text",
		"Page Should Not Contain Element",
		"Page Should Not Contain Text",
		"Pinch",
		"Portrait",
		"Quit Application",
		"Remove Application",
		"Reset Application",
		"Scroll",
		"Scroll Down",
		"Scroll Up",
		"Swipe",
		"Switch Application",
		"Switch To Context",
		"Tap",
		"Wait Until Element Is Visible",
		"Wait Until Page Contains",
		"Wait Until Page Contains Element",
		"Zoom",
	},
	"Browser": {
		"Add Cookie",
		"Check Checkbox",
		"Clear Text",
		"Click",
		"Click With Options",
		"Close Browser",
		"Close Context",
		"Close Page",
		"Connect To Browser",
		"Delete All Cookies",
		"Download",
		"Drag And Drop",
		"Evaluate JavaScript",
		"Fill Secret",
		"Fill Text",
		"Focus",
		"Get Attribute",
		"Get Browser Catalog",
		"Get Element",
		"Get Element Count",
		"Get Elements",
		"Get Page Source",
		"Get Text",
		"Get Title",
		"Get Url",
		"Go Back",
		"Go Forward",
		"Go To",
		"Hover",
		"Keyboard Input",
		"Keyboard Key",
		"New Browser",
		"New Context",
		"New Page",
		"Press Keys",
		"Reload",
		"Scroll By",
		"Scroll To",
		"Select Options By",
		"Take Screenshot",
		"Type Text",
		"Uncheck Checkbox",
		"Upload File By Selector",
		"Wait For Elements State",
		"Wait For Load State",
		"Wait For Response",
	},
}
