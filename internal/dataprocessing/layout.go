package dataprocessing

import (
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

// strftime directives understood in dataset specs
var strftimeDirectives = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'b': "Jan",
	'B': "January",
	'a': "Mon",
	'A': "Monday",
	'j': "002",
	'z': "-0700",
	'Z': "MST",
	'%': "%",
}

// fallbackLayouts are tried in order after ISO-8601 when no layout is given
var fallbackLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04",
	"2006-1-2 15:04:05",
	"2006/1/2",
	"1/2/2006",
	"1/2/06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// translateLayout converts a strftime format into a Go reference layout.
// Formats without a '%' are taken to be Go layouts already.
func translateLayout(format string) (string, bool) {
	if !strings.Contains(format, "%") {
		return format, true
	}

	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return "", false
		}
		i++
		layout, ok := strftimeDirectives[format[i]]
		if !ok {
			return "", false
		}
		b.WriteString(layout)
	}
	return b.String(), true
}

// digitsOnly reports whether a Go layout renders as a fixed-width run of digits
func digitsOnly(layout string) bool {
	if layout == "" {
		return false
	}
	for _, r := range layout {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// timeParser parses cells with either a fixed layout or auto-detection
type timeParser struct {
	layout string
}

func newTimeParser(format string) (*timeParser, bool) {
	if format == "" {
		return &timeParser{}, true
	}
	layout, ok := translateLayout(format)
	if !ok {
		return nil, false
	}
	return &timeParser{layout: layout}, true
}

func (p *timeParser) parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if p.layout != "" {
		if digitsOnly(p.layout) && len(s) < len(p.layout) {
			s = strings.Repeat("0", len(p.layout)-len(s)) + s
		}
		t, err := time.Parse(p.layout, s)
		return t, err == nil
	}

	if t, err := iso8601.ParseString(s); err == nil {
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
