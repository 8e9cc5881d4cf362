package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
)

const headerRule = "-----------------------------------------------------------------"

// HeaderField is one "key : value" line of a session file header.
type HeaderField struct {
	Key   string
	Value string
}

// DefaultHeader describes the host the session runs on.
func DefaultHeader() []HeaderField {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return []HeaderField{
		{Key: "OSName", Value: runtime.GOOS},
		{Key: "CPUArchitecture", Value: runtime.GOARCH},
		{Key: "CPUCount", Value: fmt.Sprint(runtime.NumCPU())},
		{Key: "Hostname", Value: hostname},
		{Key: "GoVersion", Value: runtime.Version()},
		{Key: "PID", Value: fmt.Sprint(os.Getpid())},
	}
}

// WriteHeader writes fields followed by a separator rule.
func WriteHeader(w io.Writer, fields []HeaderField) error {
	var b strings.Builder
	b.WriteString("\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "%s : %s\n", f.Key, f.Value)
	}
	b.WriteString("\n" + headerRule + "\n\n")
	_, err := io.WriteString(w, b.String())
	return err
}
