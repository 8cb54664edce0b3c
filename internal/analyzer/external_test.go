package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/splinter-dev/splinter/internal/apperr"
)

func TestParseAnalyzerOutput(t *testing.T) {
	output := []byte(`analyzing application...
found 1 route
{"routes":[{"name":"index","path":"/","methods":["GET"],"source":"def index():\n    return 'ok'"}],"language":"python","framework":"flask"}
done
`)

	result, err := parseAnalyzerOutput(output)
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	require.Equal(t, "index", result.Routes[0].Name)
	require.Equal(t, "flask", result.Framework)
}

func TestParseAnalyzerOutput_NoJSON(t *testing.T) {
	_, err := parseAnalyzerOutput([]byte("just logs\nno result here\n"))
	require.True(t, apperr.IsKind(err, apperr.KindCodeAnalysis))
}

func TestParseAnalyzerOutput_MalformedJSON(t *testing.T) {
	_, err := parseAnalyzerOutput([]byte(`{"routes": [`))
	require.True(t, apperr.IsKind(err, apperr.KindCodeAnalysis))
}

func TestExternalScanner_Run(t *testing.T) {
	scanner := NewExternalScanner("python",
		[]string{"echo", `{"routes":[{"name":"index","path":"/","methods":["GET"]}]}`},
		5*time.Second)

	result, err := scanner.Analyze(context.Background(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	require.Equal(t, "python", result.Language)
}

func TestExternalScanner_Timeout(t *testing.T) {
	scanner := NewExternalScanner("python", []string{"sleep", "5"}, 50*time.Millisecond)

	_, err := scanner.Analyze(context.Background(), t.TempDir())
	require.True(t, apperr.IsKind(err, apperr.KindCodeAnalysis))
}
