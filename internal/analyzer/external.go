package analyzer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/apperr"
)

// ExternalScanner shells out to an ecosystem-specific analyzer process
// and parses its JSON output. The process writes diagnostics to stdout
// freely; the result is the first line that starts with '{'.
type ExternalScanner struct {
	language string
	command  []string
	timeout  time.Duration
}

// NewExternalScanner builds a scanner around a command line. The
// application path is appended as the final argument.
func NewExternalScanner(language string, command []string, timeout time.Duration) *ExternalScanner {
	return &ExternalScanner{language: language, command: command, timeout: timeout}
}

func (s *ExternalScanner) Language() string { return s.language }

func (s *ExternalScanner) Analyze(ctx context.Context, appPath string) (*Result, error) {
	if len(s.command) == 0 {
		return nil, apperr.CodeAnalysis("analyzer_unconfigured", nil, "no external analyzer configured for %s", s.language)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string{}, s.command[1:]...), appPath)
	cmd := exec.CommandContext(ctx, s.command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, apperr.CodeAnalysis("analyzer_timeout", ctx.Err(),
			"analyzer exceeded %s for %s", s.timeout, appPath)
	}
	if err != nil {
		return nil, apperr.CodeAnalysis("analyzer_failed", err,
			"analyzer process failed: %s", strings.TrimSpace(stderr.String()))
	}

	log.Debug().
		Str("language", s.language).
		Dur("elapsed", time.Since(start)).
		Msg("External analyzer finished")

	result, err := parseAnalyzerOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	if result.Language == "" {
		result.Language = s.language
	}
	return result, nil
}

// parseAnalyzerOutput locates the JSON document in mixed process
// output and unmarshals it.
func parseAnalyzerOutput(output []byte) (*Result, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var result Result
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			return nil, apperr.CodeAnalysis("analyzer_bad_output", err, "parsing analyzer output")
		}
		return &result, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.CodeAnalysis("analyzer_bad_output", err, "reading analyzer output")
	}

	return nil, apperr.CodeAnalysis("analyzer_no_output", nil, "analyzer produced no JSON result")
}
