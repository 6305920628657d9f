// Package ingest reads access-log files line by line and builds the
// in-memory record set the detectors and the store operate on.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/parser"
)

// ErrNoRecords reports an ingestion pass that parsed zero records across all
// input files. It is distinct from a file open failure, which aborts early.
var ErrNoRecords = errors.New("no records parsed from input files")

var fileExtensionRegex = regexp.MustCompile(`\.([a-zA-Z0-9]+)$`)

// FailedLine is one diagnostic sample of a line that did not parse.
type FailedLine struct {
	File       string `json:"file"`
	LineNumber int    `json:"line_number"`
	Excerpt    string `json:"excerpt"`
	Reason     string `json:"reason"`
}

// Result is the outcome of one ingestion pass.
type Result struct {
	Records       []model.LogRecord `json:"-"`
	Files         []string          `json:"files"`
	TotalLines    int               `json:"total_lines"`
	ParsedCount   int               `json:"parsed_count"`
	FailedCount   int               `json:"failed_count"`
	FailedSamples []FailedLine      `json:"failed_samples"`
}

// Ingester parses files with a resolved line parser.
type Ingester struct {
	parser parser.Parser
}

func NewIngester(p parser.Parser) *Ingester {
	return &Ingester{parser: p}
}

// IngestFiles parses the given files in order. Blank lines are skipped
// without being counted as failures; malformed lines are counted, with the
// first samples kept for diagnostics. A file that cannot be opened aborts
// the pass. Zero parsed records across all files wraps ErrNoRecords.
func (ing *Ingester) IngestFiles(ctx context.Context, paths []string) (*Result, error) {
	result := &Result{
		Files:         append([]string{}, paths...),
		FailedSamples: []FailedLine{},
	}

	for _, path := range paths {
		if err := ing.ingestFile(ctx, path, result); err != nil {
			return nil, err
		}
	}

	if result.ParsedCount == 0 {
		return result, fmt.Errorf("%w: %d lines failed across %d files", ErrNoRecords, result.FailedCount, len(paths))
	}

	log.Printf("[Ingest] Parsed %d/%d lines from %d files (%d failed)",
		result.ParsedCount, result.TotalLines, len(paths), result.FailedCount)
	return result, nil
}

func (ing *Ingester) ingestFile(ctx context.Context, path string, result *Result) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, config.DefaultLogBufferSize), config.MaxLogBufferSize)

	lineNumber := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingestion cancelled: %w", err)
		}

		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result.TotalLines++

		record, err := ing.parser.Parse(line)
		if err != nil {
			result.FailedCount++
			if len(result.FailedSamples) < config.MaxFailedLineSamples {
				result.FailedSamples = append(result.FailedSamples, FailedLine{
					File:       path,
					LineNumber: lineNumber,
					Excerpt:    truncateLine(line),
					Reason:     err.Error(),
				})
			}
			continue
		}

		deriveFields(record)
		result.Records = append(result.Records, *record)
		result.ParsedCount++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file %s: %w", path, err)
	}
	return nil
}

// deriveFields fills in the request-line split, calendar fields and file
// extension that the detectors group on.
func deriveFields(record *model.LogRecord) {
	parts := strings.SplitN(record.RequestLine, " ", 3)
	if len(parts) > 0 {
		record.Method = parts[0]
	}
	if len(parts) > 1 {
		record.Path = parts[1]
	}
	if len(parts) > 2 {
		record.Protocol = parts[2]
	}

	record.Hour = record.Timestamp.Hour()
	record.Date = record.Timestamp.Format("2006-01-02")

	if m := fileExtensionRegex.FindStringSubmatch(record.Path); m != nil {
		record.FileExtension = m[1]
	} else {
		record.FileExtension = model.NoExtension
	}
}

func truncateLine(line string) string {
	if len(line) > config.MaxLineDisplayLength {
		return line[:config.MaxLineDisplayLength]
	}
	return line
}
