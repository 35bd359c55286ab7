package spawn

import (
	"fmt"
	"strings"
)

// Template placeholders. {{cmd}} must stand alone as one template word; it
// expands to the command argv without re-splitting. The others substitute
// inside a word.
const (
	PlaceholderDir   = "{{dir}}"
	PlaceholderTitle = "{{title}}"
	PlaceholderClass = "{{class}}"
	PlaceholderCmd   = "{{cmd}}"
)

// TemplateValues are the substitutions for one render.
type TemplateValues struct {
	Dir     string
	Title   string
	Class   string
	Command []string
}

// RenderTemplate fills placeholders in a terminal spawn template and
// returns an exec-ready argv. A word whose placeholder expands to an
// empty value is dropped together with a directly preceding flag (e.g.
// "--title {{title}}" disappears when no title is given).
func RenderTemplate(template string, v TemplateValues) ([]string, error) {
	words, err := SplitCommand(template)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty spawn template")
	}

	subst := []struct {
		placeholder string
		value       string
	}{
		{PlaceholderDir, v.Dir},
		{PlaceholderTitle, v.Title},
		{PlaceholderClass, v.Class},
	}

	argv := make([]string, 0, len(words)+len(v.Command))
	dropPrevFlag := func() {
		if len(argv) > 1 && strings.HasPrefix(argv[len(argv)-1], "-") {
			argv = argv[:len(argv)-1]
		}
	}

	for _, word := range words {
		if word == PlaceholderCmd {
			if len(v.Command) == 0 {
				dropPrevFlag()
				continue
			}
			argv = append(argv, v.Command...)
			continue
		}
		if strings.Contains(word, PlaceholderCmd) {
			return nil, fmt.Errorf("%s must be a separate word in spawn template", PlaceholderCmd)
		}

		empty := false
		for _, s := range subst {
			if !strings.Contains(word, s.placeholder) {
				continue
			}
			if strings.TrimSpace(s.value) == "" {
				empty = true
			}
			word = strings.ReplaceAll(word, s.placeholder, s.value)
		}
		if empty {
			dropPrevFlag()
			continue
		}
		argv = append(argv, word)
	}

	return argv, nil
}

// ValidateTemplate checks that template splits into a non-empty argv and
// that {{cmd}} appears only as a whole word.
func ValidateTemplate(template string) error {
	words, err := SplitCommand(template)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return fmt.Errorf("empty spawn template")
	}
	for _, w := range words {
		if w != PlaceholderCmd && strings.Contains(w, PlaceholderCmd) {
			return fmt.Errorf("%s must be a separate word in spawn template", PlaceholderCmd)
		}
	}
	return nil
}

// SupportsClass reports whether template can carry a WM_CLASS marker.
func SupportsClass(template string) bool {
	return strings.Contains(template, PlaceholderClass)
}

// SplitCommand splits a shell-like command string into arguments,
// respecting single and double quotes and backslash escapes.
func SplitCommand(s string) ([]string, error) {
	var out []string
	var buf strings.Builder
	inSingle := false
	inDouble := false
	escaped := false
	quoted := false

	flush := func() {
		if buf.Len() == 0 && !quoted {
			return
		}
		out = append(out, buf.String())
		buf.Reset()
		quoted = false
	}

	for _, r := range s {
		if escaped {
			buf.WriteRune(r)
			escaped = false
			continue
		}
		if !inSingle && r == '\\' {
			escaped = true
			continue
		}
		if !inDouble && r == '\'' {
			inSingle = !inSingle
			quoted = true
			continue
		}
		if !inSingle && r == '"' {
			inDouble = !inDouble
			quoted = true
			continue
		}
		if !inSingle && !inDouble {
			if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
				flush()
				continue
			}
		}
		buf.WriteRune(r)
	}

	if escaped {
		return nil, fmt.Errorf("unfinished escape in command template")
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unterminated quote in command template")
	}

	flush()
	return out, nil
}
