package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes one line per record:
//
//	15:04:05 INFO  watch [jobs.xlsx] refresh published jobs=12 completed=3
//
// component and sheet attrs are lifted into the prefix; everything else is
// rendered as key=value in record order after handler-level attrs.
type consoleHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	level     *slog.LevelVar
	addSource bool

	component string
	sheet     string
	group     string
	fields    string
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	component, sheet := h.component, h.sheet
	var fields strings.Builder
	fields.WriteString(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&fields, &component, &sheet, h.group, a)
		return true
	})

	var b strings.Builder
	b.Grow(96 + fields.Len())
	b.WriteString(at.Format(time.TimeOnly))
	fmt.Fprintf(&b, " %-5s ", levelLabel(r.Level))
	if component != "" {
		b.WriteString(component)
		b.WriteByte(' ')
	}
	if sheet != "" {
		b.WriteString("[" + filepath.Base(sheet) + "] ")
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if h.addSource && r.PC != 0 {
		if src := r.Source(); src != nil {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteString(fields.String())
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var fields strings.Builder
	fields.WriteString(h.fields)
	for _, a := range attrs {
		next.appendAttr(&fields, &next.component, &next.sheet, h.group, a)
	}
	next.fields = fields.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// appendAttr renders a into b, lifting the first component and sheet values
// into the line prefix. Groups flatten to dotted keys.
func (h *consoleHandler) appendAttr(b *strings.Builder, component, sheet *string, group string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := group
		if a.Key != "" {
			inner = joinKey(group, a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, component, sheet, inner, ga)
		}
		return
	}
	if group == "" {
		switch {
		case a.Key == FieldComponent && *component == "":
			*component = a.Value.String()
			return
		case a.Key == FieldSheet && *sheet == "":
			*sheet = a.Value.String()
			return
		}
	}
	b.WriteByte(' ')
	b.WriteString(joinKey(group, a.Key))
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func joinKey(group, key string) string {
	switch {
	case group == "":
		return key
	case key == "":
		return group
	default:
		return group + "." + key
	}
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		s = v.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
