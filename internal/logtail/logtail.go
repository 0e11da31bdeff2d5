package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Line is one parsed record from a Lookout log file. Fields the line does not
// carry are left empty; Raw always holds the original text.
type Line struct {
	Raw    string
	Time   time.Time
	Level  string
	Msg    string
	Nav    string
	Target string
}

// Filter selects lines. The zero Filter keeps everything.
type Filter struct {
	// Nav keeps only lines logged during the navigation with this id.
	Nav string
	// MinLevel, when set, drops lines below it. Lines without a level are kept.
	MinLevel *slog.Level
}

func (f Filter) keep(l Line) bool {
	if f.Nav != "" && l.Nav != f.Nav {
		return false
	}
	if f.MinLevel != nil && l.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(l.Level)); err == nil && lvl < *f.MinLevel {
			return false
		}
	}
	return true
}

// Read returns at most maxLines from the end of the file at path. A missing
// file reads as empty.
func Read(path string, maxLines int) ([]string, error) {
	lines, err := tail(path, maxLines, nil)
	if err != nil || lines == nil {
		return nil, err
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Raw
	}
	return out, nil
}

// Tail returns the last maxLines lines of path that pass f, parsed.
func Tail(path string, maxLines int, f Filter) ([]Line, error) {
	return tail(path, maxLines, f.keep)
}

func tail(path string, maxLines int, keep func(Line) bool) ([]Line, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]Line, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		line := Parse(scanner.Text())
		if keep != nil && !keep(line) {
			continue
		}
		ring[idx] = line
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]Line, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Parse reads a line written by the slog text or JSON handler. Lines in any
// other shape come back with only Raw set.
func Parse(raw string) Line {
	line := Line{Raw: raw}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return line
	}

	var fields map[string]string
	if strings.HasPrefix(trimmed, "{") {
		fields = jsonFields(trimmed)
	} else {
		fields = textFields(trimmed)
	}
	if fields == nil {
		return line
	}

	if ts := fields[slog.TimeKey]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			line.Time = t
		}
	}
	line.Level = fields[slog.LevelKey]
	line.Msg = fields[slog.MessageKey]
	line.Nav = fields["nav"]
	line.Target = fields["target"]
	return line
}

func jsonFields(s string) map[string]string {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil
	}
	fields := make(map[string]string, len(decoded))
	for k, v := range decoded {
		if str, ok := v.(string); ok {
			fields[k] = str
		}
	}
	return fields
}

// textFields splits key=value pairs, honouring the quoting slog applies to
// values that contain spaces.
func textFields(s string) map[string]string {
	fields := map[string]string{}
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ")
		eq := strings.IndexByte(s, '=')
		if eq <= 0 || strings.ContainsRune(s[:eq], ' ') {
			break
		}
		key := s[:eq]
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := closingQuote(s)
			if end < 0 {
				break
			}
			unquoted, err := strconv.Unquote(s[:end+1])
			if err != nil {
				break
			}
			value = unquoted
			s = s[end+1:]
		} else {
			sp := strings.IndexByte(s, ' ')
			if sp < 0 {
				sp = len(s)
			}
			value = s[:sp]
			s = s[sp:]
		}
		fields[key] = value
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
