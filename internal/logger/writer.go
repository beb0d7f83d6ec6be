package logger

import (
	"bytes"
	"io"
	"strings"
)

// Writer adapts the structured logger into an io.Writer for third-party
// libraries that only accept a log writer (memberlist, net/http error
// logs). Each written line becomes one log record tagged with the
// component name. Lines carrying a "[LEVEL]" prefix, as memberlist emits,
// are mapped onto the matching level.
func Writer(component string) io.Writer {
	return &lineWriter{component: component}
}

type lineWriter struct {
	component string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	line := string(bytes.TrimRight(p, "\n"))
	if line == "" {
		return len(p), nil
	}

	level := "INFO"
	for _, l := range []string{"DEBUG", "INFO", "WARN", "ERR"} {
		if idx := strings.Index(line, "["+l+"]"); idx >= 0 {
			level = l
			line = strings.TrimSpace(line[idx+len(l)+2:])
			break
		}
	}

	switch level {
	case "DEBUG":
		Debug(line, "component", w.component)
	case "WARN":
		Warn(line, "component", w.component)
	case "ERR":
		Error(line, "component", w.component)
	default:
		Info(line, "component", w.component)
	}
	return len(p), nil
}
