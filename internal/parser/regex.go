package parser

import (
	"fmt"
	"regexp"
)

// RegexCompiler accepts a raw regular expression whose named capture groups
// select record fields (remote_host, timestamp, request_line, status_code,
// response_size, referer, user_agent, request_time and so on). Groups the
// record model does not know are ignored; fields without a group keep their
// zero value. Matching is anchored at the start of the line.
type RegexCompiler struct{}

// Compile implements FormatCompiler.
func (c *RegexCompiler) Compile(pattern string) (Parser, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	return newLineParser(re), nil
}
