package parser

import (
	"fmt"
	"log"
	"strings"
)

// namedFormats maps the predefined format names to their Apache LogFormat
// templates, mirroring the stock httpd.conf definitions.
var namedFormats = map[string]string{
	"common":             `%h %l %u %t "%r" %>s %O`,
	"combined":           `%h %l %u %t "%r" %>s %O "%{Referer}i" "%{User-Agent}i"`,
	"combined_with_time": `%h %l %u %t "%r" %>s %O "%{Referer}i" "%{User-Agent}i" %D`,
	"vhost_combined":     `%v:%p %h %l %u %t "%r" %>s %O "%{Referer}i" "%{User-Agent}i"`,
}

// formatDirectives are the tokens whose presence marks a specification as an
// Apache LogFormat string rather than a regular expression.
var formatDirectives = []string{
	"%h", "%l", "%u", "%t", "%r", "%s", "%O", "%i", "%v", "%p", "%D", "%T",
}

// NamedFormats returns the predefined format names.
func NamedFormats() []string {
	names := make([]string, 0, len(namedFormats))
	for name := range namedFormats {
		names = append(names, name)
	}
	return names
}

// Resolve builds a Parser from a format specification. Predefined names win,
// then strings that look like LogFormat directives, then plain regular
// expressions with named capture groups. An unusable specification is a
// configuration error.
func Resolve(format string) (Parser, error) {
	if template, ok := namedFormats[format]; ok {
		p, err := (&DirectiveCompiler{}).Compile(template)
		if err != nil {
			return nil, fmt.Errorf("failed to compile predefined format %q: %w", format, err)
		}
		return p, nil
	}

	if looksLikeDirectives(format) {
		p, err := (&DirectiveCompiler{}).Compile(format)
		if err == nil {
			return p, nil
		}
		log.Printf("[Parser] Directive compile failed for %q (%v), retrying as regex", format, err)
		if p, regexErr := (&RegexCompiler{}).Compile(format); regexErr == nil {
			return p, nil
		}
		return nil, fmt.Errorf("failed to compile log format %q: %w", format, err)
	}

	p, err := (&RegexCompiler{}).Compile(format)
	if err != nil {
		return nil, fmt.Errorf("invalid log format regex %q: %w", format, err)
	}
	return p, nil
}

func looksLikeDirectives(format string) bool {
	if !strings.Contains(format, "%") {
		return false
	}
	for _, directive := range formatDirectives {
		if strings.Contains(format, directive) {
			return true
		}
	}
	return false
}
