package plan

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Accumulates shell commands joined with "&&".
//
// Arguments are quoted for POSIX sh; the first quoting error sticks and is
// returned by [script.String].
type script struct {
	parts []string
	err   error
}

// Appends a command built from literal arguments.
func (s *script) run(args ...string) *script {
	words := make([]string, 0, len(args))
	for _, a := range args {
		q, err := quote(a)
		if err != nil && s.err == nil {
			s.err = err
		}
		words = append(words, q)
	}
	s.parts = append(s.parts, strings.Join(words, " "))
	return s
}

// Appends a command removing the contents of dir but not dir itself.
func (s *script) clear(dir string) *script {
	q, err := quote(dir)
	if err != nil && s.err == nil {
		s.err = err
	}
	s.parts = append(s.parts, "rm -rf "+q+"/*")
	return s
}

// Returns the joined script.
func (s *script) String() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return strings.Join(s.parts, " && "), nil
}

// Quotes a single word for POSIX sh. Words that need no quoting are returned
// unchanged.
func quote(word string) (string, error) {
	q, err := syntax.Quote(word, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrScript, word, err)
	}
	return q, nil
}

// Parses a script to make sure it is valid POSIX sh.
func checkScript(src string) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	if _, err := parser.Parse(strings.NewReader(src), ""); err != nil {
		return fmt.Errorf("%w: %w", ErrScript, err)
	}
	return nil
}
