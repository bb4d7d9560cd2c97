package robot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteTest is one test case discovered in a suite source file.
type SuiteTest struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// SuiteFile is one parsed test suite source file.
type SuiteFile struct {
	Path      string      `json:"path"`
	LineCount int         `json:"line_count"`
	Libraries []string    `json:"libraries"`
	Tests     []SuiteTest `json:"tests"`
}

// sections of a suite file we care about.
const (
	sectionNone = iota
	sectionSettings
	sectionTests
	sectionOther
)

// ScanSuite walks the given directory and parses every .robot and
// .resource file into its tests, steps, and library imports. Paths in
// the result are relative to root and sorted for determinism.
func ScanSuite(root string) ([]SuiteFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading suite directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("suite path %q is not a directory", root)
	}

	var files []SuiteFile

	err = filepath.Walk(root, func(
		path string, fi os.FileInfo, walkErr error,
	) error {
		if walkErr != nil {
			return walkErr
		}

		if fi.IsDir() {
			// Skip hidden directories (.git and friends).
			if name := fi.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}

			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".robot" && ext != ".resource" {
			return nil
		}

		parsed, parseErr := parseSuiteFile(path)
		if parseErr != nil {
			return fmt.Errorf("parsing %s: %w", path, parseErr)
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr == nil {
			parsed.Path = rel
		}

		files = append(files, *parsed)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning suite files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// parseSuiteFile reads one suite file and extracts its Library imports
// and test cases with their step keywords.
func parseSuiteFile(path string) (*SuiteFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file := &SuiteFile{Path: path}
	section := sectionNone

	var current *SuiteTest

	flush := func() {
		if current != nil {
			file.Tests = append(file.Tests, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		file.LineCount++

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasPrefix(trimmed, "***") {
			flush()

			section = classifySection(trimmed)

			continue
		}

		switch section {
		case sectionSettings:
			if lib, ok := parseLibraryImport(trimmed); ok {
				file.Libraries = append(file.Libraries, lib)
			}
		case sectionTests:
			indented := line != strings.TrimLeft(line, " \t")
			if !indented {
				flush()

				current = &SuiteTest{Name: trimmed}

				continue
			}

			if current == nil {
				continue
			}

			if step, ok := parseStep(trimmed); ok {
				current.Steps = append(current.Steps, step)
			}
		}
	}

	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return file, nil
}

// classifySection maps a "*** Section ***" header line to a section id.
func classifySection(line string) int {
	name := strings.ToLower(strings.TrimSpace(strings.Trim(line, "*")))

	switch name {
	case "settings", "setting":
		return sectionSettings
	case "test cases", "test case", "tasks", "task":
		return sectionTests
	default:
		return sectionOther
	}
}

// parseLibraryImport extracts the library name from a "Library  Name"
// settings line. File-based imports reduce to their base name.
func parseLibraryImport(line string) (string, bool) {
	cells := splitCells(line)
	if len(cells) < 2 || !strings.EqualFold(cells[0], "Library") {
		return "", false
	}

	lib := cells[1]

	// Strip a path or module suffix: "libs/CustomLib.py" -> "CustomLib".
	lib = filepath.Base(lib)
	lib = strings.TrimSuffix(lib, filepath.Ext(lib))

	if lib == "" {
		return "", false
	}

	return lib, true
}

// control words that are structure, not keyword calls.
var controlWords = map[string]struct{}{
	"FOR": {}, "END": {}, "IF": {}, "ELSE": {}, "ELSE IF": {},
	"WHILE": {}, "TRY": {}, "EXCEPT": {}, "FINALLY": {},
	"BREAK": {}, "CONTINUE": {}, "RETURN": {},
}

// parseStep extracts the keyword name from an indented test body line.
// Test settings ([Tags], [Setup], ...), continuations, and control
// structures are not steps.
func parseStep(trimmed string) (string, bool) {
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "...") {
		return "", false
	}

	cells := splitCells(trimmed)

	// Skip leading variable assignments: "${out} =    Run Process  ls".
	i := 0
	for i < len(cells) {
		cell := strings.TrimSuffix(strings.TrimSpace(cells[i]), "=")
		cell = strings.TrimSpace(cell)

		if strings.HasPrefix(cell, "${") || strings.HasPrefix(cell, "@{") ||
			strings.HasPrefix(cell, "&{") {
			i++

			continue
		}

		break
	}

	if i >= len(cells) {
		return "", false
	}

	keyword := cells[i]
	if _, isControl := controlWords[keyword]; isControl {
		return "", false
	}

	return keyword, true
}

// splitCells splits a suite file line on the two-or-more-spaces (or tab)
// cell separator.
func splitCells(line string) []string {
	line = strings.ReplaceAll(line, "\t", "  ")

	var (
		cells   []string
		current strings.Builder
		spaces  int
	)

	flushCell := func() {
		if current.Len() > 0 {
			cells = append(cells, current.String())
			current.Reset()
		}
	}

	for _, r := range line {
		if r == ' ' {
			spaces++

			continue
		}

		if spaces >= 2 {
			flushCell()
		} else if spaces == 1 && current.Len() > 0 {
			current.WriteRune(' ')
		}

		spaces = 0

		current.WriteRune(r)
	}

	flushCell()

	return cells
}
