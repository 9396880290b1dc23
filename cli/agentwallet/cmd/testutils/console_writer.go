package testutils

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type TestConsoleWriter struct {
	Lines []string
}

func (w *TestConsoleWriter) String() string {
	return strings.Join(w.Lines, "\n")
}

func (w *TestConsoleWriter) Println(a ...any) {
	s := fmt.Sprintln(a...)
	w.Lines = append(w.Lines, s[:len(s)-1]) // remove newline
}

func (w *TestConsoleWriter) Print(a ...any) {
	w.Println(a...)
}

// VerifyStdout checks that every expected line was printed.
func VerifyStdout(t *testing.T, w *TestConsoleWriter, expectedLines ...string) {
	t.Helper()
	for _, expected := range expectedLines {
		require.Contains(t, w.String(), expected)
	}
}

func VerifyStdoutNotExists(t *testing.T, w *TestConsoleWriter, unexpectedLines ...string) {
	t.Helper()
	for _, unexpected := range unexpectedLines {
		require.NotContains(t, w.String(), unexpected)
	}
}
