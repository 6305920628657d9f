package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// DirectiveCompiler translates an Apache LogFormat template such as
// `%h %l %u %t "%r" %>s %O` into an anchored matching pattern. Unsupported
// directives are a compile error so the caller can fall back to treating the
// specification as a plain regular expression.
type DirectiveCompiler struct{}

// Compile implements FormatCompiler.
func (c *DirectiveCompiler) Compile(format string) (Parser, error) {
	pattern, err := buildDirectivePattern(format)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile format %q: %w", format, err)
	}
	return newLineParser(re), nil
}

// buildDirectivePattern walks the template byte by byte, emitting a capture
// group per recognised directive and quoting everything else literally.
func buildDirectivePattern(format string) (string, error) {
	var out strings.Builder
	out.WriteString("^")

	quoted := false
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			if ch == '"' {
				quoted = !quoted
			}
			out.WriteString(regexp.QuoteMeta(string(ch)))
			continue
		}

		i++
		if i >= len(format) {
			return "", fmt.Errorf("format ends with a bare %%")
		}

		switch format[i] {
		case '%':
			out.WriteString("%")
		case '>':
			i++
			if i >= len(format) || format[i] != 's' {
				return "", fmt.Errorf("unsupported directive %%>%s", safeByte(format, i))
			}
			out.WriteString(`(?P<status_code>\d+)`)
		case '{':
			end := strings.IndexByte(format[i:], '}')
			if end < 0 || i+end+1 >= len(format) {
				return "", fmt.Errorf("unterminated %%{...} directive")
			}
			name := format[i+1 : i+end]
			i += end + 1
			kind := format[i]
			snippet, err := parameterPattern(name, kind, quoted)
			if err != nil {
				return "", err
			}
			out.WriteString(snippet)
		default:
			snippet, err := directivePattern(format[i], quoted)
			if err != nil {
				return "", err
			}
			out.WriteString(snippet)
		}
	}

	out.WriteString(`\s*$`)
	return out.String(), nil
}

func directivePattern(directive byte, quoted bool) (string, error) {
	switch directive {
	case 'h':
		return `(?P<remote_host>\S+)`, nil
	case 'l':
		return `(?P<remote_logname>\S+)`, nil
	case 'u':
		return `(?P<remote_user>\S+)`, nil
	case 't':
		return `\[(?P<timestamp>[^\]]+)\]`, nil
	case 'r':
		if quoted {
			return `(?P<request_line>[^"]*)`, nil
		}
		return `(?P<request_line>.*?)`, nil
	case 's':
		return `(?P<status_code>\d+)`, nil
	case 'b', 'O':
		return `(?P<response_size>\S+)`, nil
	case 'v':
		return `(?P<virtual_host>\S+)`, nil
	case 'p':
		return `(?P<server_port>\d+)`, nil
	case 'D':
		return `(?P<request_time_us>\S+)`, nil
	case 'T':
		return `(?P<request_time_s>\S+)`, nil
	default:
		return "", fmt.Errorf("unsupported directive %%%c", directive)
	}
}

// parameterPattern handles %{Name}X directives. Only request headers (%i)
// are meaningful here, and only the two the record model carries are
// captured; other headers still consume their slot in the line.
func parameterPattern(name string, kind byte, quoted bool) (string, error) {
	if kind != 'i' {
		return "", fmt.Errorf("unsupported directive %%{%s}%c", name, kind)
	}
	value := `\S+`
	if quoted {
		value = `[^"]*`
	}
	switch strings.ToLower(name) {
	case "referer":
		return `(?P<referer>` + value + `)`, nil
	case "user-agent":
		return `(?P<user_agent>` + value + `)`, nil
	default:
		return `(?:` + value + `)`, nil
	}
}

func safeByte(s string, i int) string {
	if i >= len(s) {
		return ""
	}
	return string(s[i])
}
