// Package parser turns raw Apache-style access-log lines into typed records.
//
// A format specification resolves to a Parser in three steps: predefined
// format names, Apache LogFormat directive strings, then raw regular
// expressions with named capture groups. See Resolve.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"apache-log-sentinel/internal/model"
)

// Placeholder is the Apache "no value" marker.
const Placeholder = "-"

// Apache default timestamp format: 25/Dec/1995:10:00:00 +0000
const (
	timestampLayout       = "02/Jan/2006:15:04:05 -0700"
	timestampLayoutNoZone = "02/Jan/2006:15:04:05"
)

// Parser maps one log line to a LogRecord. A non-nil error is a reportable
// per-line outcome, never a panic; the parser stays usable for further lines.
type Parser interface {
	Parse(line string) (*model.LogRecord, error)
}

// FormatCompiler builds a Parser from a format specification string.
type FormatCompiler interface {
	Compile(format string) (Parser, error)
}

// lineParser matches lines against a compiled pattern and extracts fields by
// capture-group name. Both compilers produce this type; they differ only in
// how the pattern is built.
type lineParser struct {
	re     *regexp.Regexp
	groups map[string]int
}

func newLineParser(re *regexp.Regexp) *lineParser {
	groups := make(map[string]int)
	for i, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = i
		}
	}
	return &lineParser{re: re, groups: groups}
}

func (p *lineParser) group(matches []string, name string) (string, bool) {
	idx, ok := p.groups[name]
	if !ok || idx >= len(matches) {
		return "", false
	}
	return matches[idx], true
}

// Parse implements Parser.
func (p *lineParser) Parse(line string) (*model.LogRecord, error) {
	line = strings.TrimSpace(line)
	matches := p.re.FindStringSubmatch(line)
	if matches == nil {
		return nil, fmt.Errorf("line does not match format")
	}

	record := &model.LogRecord{}

	if v, ok := p.group(matches, "remote_host"); ok {
		record.RemoteHost = v
	}
	record.RemoteLogname = optionalString(p.group(matches, "remote_logname"))
	record.RemoteUser = optionalString(p.group(matches, "remote_user"))

	ts, ok := p.group(matches, "timestamp")
	if !ok {
		return nil, fmt.Errorf("format captures no timestamp")
	}
	parsed, err := parseTimestamp(ts)
	if err != nil {
		return nil, err
	}
	record.Timestamp = parsed

	if v, ok := p.group(matches, "request_line"); ok {
		record.RequestLine = v
	}

	if v, ok := p.group(matches, "status_code"); ok {
		status, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse status code %q: %w", v, err)
		}
		record.StatusCode = status
	}

	record.ResponseSize = optionalInt(p.group(matches, "response_size"))
	record.Referer = optionalString(p.group(matches, "referer"))
	record.UserAgent = optionalString(p.group(matches, "user_agent"))
	record.VirtualHost = optionalString(p.group(matches, "virtual_host"))

	if v, ok := p.group(matches, "server_port"); ok && v != Placeholder {
		if port, err := strconv.Atoi(v); err == nil {
			record.ServerPort = &port
		}
	}

	// %T captures seconds, %D microseconds; a plain regex group captures
	// seconds as written.
	if v := optionalFloat(p.group(matches, "request_time")); v != nil {
		record.RequestTime = v
	} else if v := optionalFloat(p.group(matches, "request_time_s")); v != nil {
		record.RequestTime = v
	} else if v := optionalFloat(p.group(matches, "request_time_us")); v != nil {
		seconds := *v / 1_000_000.0
		record.RequestTime = &seconds
	}

	return record, nil
}

// parseTimestamp parses the Apache timestamp format, retrying the first 20
// characters without a zone offset when the full form does not match.
func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(timestampLayout, value)
	if err == nil {
		return ts, nil
	}
	if len(value) >= len(timestampLayoutNoZone) {
		if ts, retryErr := time.Parse(timestampLayoutNoZone, value[:len(timestampLayoutNoZone)]); retryErr == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", value)
}

// optionalString treats the "-" placeholder and missing groups as no value.
func optionalString(value string, ok bool) *string {
	if !ok || value == Placeholder {
		return nil
	}
	return &value
}

// optionalInt coerces to int64, yielding no value for the placeholder,
// missing groups, and unparseable input.
func optionalInt(value string, ok bool) *int64 {
	if !ok || value == Placeholder {
		return nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

// optionalFloat coerces to float64 with the same placeholder handling.
func optionalFloat(value string, ok bool) *float64 {
	if !ok || value == Placeholder {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	return &parsed
}
