package tuitest

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// Frame is the visible screen after one chunk of program output.
type Frame struct {
	Index int
	Plain string
}

// FinalFrame returns the last captured frame. The second return value is false
// when no frames were recorded.
func (r *Recording) FinalFrame() (Frame, bool) {
	if r == nil || len(r.Frames) == 0 {
		return Frame{}, false
	}
	return r.Frames[len(r.Frames)-1], true
}

// screen is a small VT100 subset: enough cursor movement and erasing to replay
// Bubble Tea's inline and alternate-screen renderers.
type screen struct {
	width   int
	height  int
	rows    [][]string
	row     int
	col     int
	saved   [2]int
	main    [][]string
	alt     bool
	pending []byte
}

func newScreen(width, height int) *screen {
	s := &screen{width: width, height: height}
	s.rows = blankRows(width, height)
	return s
}

func blankRows(width, height int) [][]string {
	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, width)
	}
	return rows
}

// Write feeds raw terminal output. Escape sequences and runes split across
// writes are held until complete.
func (s *screen) Write(p []byte) (int, error) {
	data := append(s.pending, p...)
	s.pending = nil
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b == 0x1b:
			n, ok := s.escape(data[i:])
			if !ok {
				s.pending = append([]byte(nil), data[i:]...)
				return len(p), nil
			}
			i += n
		case b == '\r':
			s.col = 0
			i++
		case b == '\n':
			s.lineFeed()
			i++
		case b == '\b':
			if s.col > 0 {
				s.col--
			}
			i++
		case b == '\t':
			s.col = min((s.col/8+1)*8, s.width-1)
			i++
		case b < 0x20 || b == 0x7f:
			i++
		default:
			if !utf8.FullRune(data[i:]) {
				s.pending = append([]byte(nil), data[i:]...)
				return len(p), nil
			}
			r, size := utf8.DecodeRune(data[i:])
			s.put(r)
			i += size
		}
	}
	return len(p), nil
}

func (s *screen) put(r rune) {
	w := runewidth.RuneWidth(r)
	if w == 0 {
		// Combining marks and variation selectors attach to the previous cell.
		if s.col > 0 {
			s.rows[s.row][s.col-1] += string(r)
		}
		return
	}
	if s.col+w > s.width {
		s.col = 0
		s.lineFeed()
	}
	s.rows[s.row][s.col] = string(r)
	for i := 1; i < w; i++ {
		s.rows[s.row][s.col+i] = ""
	}
	s.col += w
}

func (s *screen) lineFeed() {
	if s.row < s.height-1 {
		s.row++
		return
	}
	s.rows = append(s.rows[1:], make([]string, s.width))
}

// escape consumes one escape sequence at the start of data and reports its
// length. ok is false when the sequence is not yet complete.
func (s *screen) escape(data []byte) (n int, ok bool) {
	if len(data) < 2 {
		return 0, false
	}
	switch data[1] {
	case '[':
		for i := 2; i < len(data); i++ {
			if data[i] >= 0x40 && data[i] <= 0x7e {
				s.csi(string(data[2:i]), data[i])
				return i + 1, true
			}
		}
		return 0, false
	case ']':
		for i := 2; i < len(data); i++ {
			if data[i] == 0x07 {
				return i + 1, true
			}
			if data[i] == 0x1b && i+1 < len(data) && data[i+1] == '\\' {
				return i + 2, true
			}
		}
		return 0, false
	case '7':
		s.saved = [2]int{s.row, s.col}
		return 2, true
	case '8':
		s.row, s.col = s.saved[0], s.saved[1]
		return 2, true
	case '(', ')', '#':
		if len(data) < 3 {
			return 0, false
		}
		return 3, true
	default:
		return 2, true
	}
}

func (s *screen) csi(params string, final byte) {
	if strings.HasPrefix(params, "?") {
		if final == 'h' || final == 'l' {
			s.privateMode(params[1:], final == 'h')
		}
		return
	}
	args := parseParams(params)
	arg := func(idx, def int) int {
		if idx < len(args) && args[idx] > 0 {
			return args[idx]
		}
		return def
	}
	switch final {
	case 'A':
		s.row = max(s.row-arg(0, 1), 0)
	case 'B':
		s.row = min(s.row+arg(0, 1), s.height-1)
	case 'C':
		s.col = min(s.col+arg(0, 1), s.width-1)
	case 'D':
		s.col = max(s.col-arg(0, 1), 0)
	case 'E':
		s.row = min(s.row+arg(0, 1), s.height-1)
		s.col = 0
	case 'F':
		s.row = max(s.row-arg(0, 1), 0)
		s.col = 0
	case 'G':
		s.col = clamp(arg(0, 1)-1, s.width)
	case 'H', 'f':
		s.row = clamp(arg(0, 1)-1, s.height)
		s.col = clamp(arg(1, 1)-1, s.width)
	case 'J':
		s.eraseDisplay(arg(0, 0))
	case 'K':
		s.eraseLine(s.row, arg(0, 0))
	}
}

func (s *screen) privateMode(mode string, set bool) {
	switch mode {
	case "1049", "1047", "47":
		if set && !s.alt {
			s.main = s.rows
			s.rows = blankRows(s.width, s.height)
			s.alt = true
		} else if !set && s.alt {
			s.rows = s.main
			s.main = nil
			s.alt = false
		}
	}
}

func (s *screen) eraseLine(row, mode int) {
	from, to := s.col, s.width
	switch mode {
	case 1:
		from, to = 0, s.col+1
	case 2:
		from, to = 0, s.width
	}
	for c := from; c < to && c < s.width; c++ {
		s.rows[row][c] = ""
	}
}

func (s *screen) eraseDisplay(mode int) {
	switch mode {
	case 0:
		s.eraseLine(s.row, 0)
		for r := s.row + 1; r < s.height; r++ {
			s.rows[r] = make([]string, s.width)
		}
	case 1:
		for r := 0; r < s.row; r++ {
			s.rows[r] = make([]string, s.width)
		}
		s.eraseLine(s.row, 1)
	default:
		s.rows = blankRows(s.width, s.height)
	}
}

// Text renders the visible screen with trailing blanks removed.
func (s *screen) Text() string {
	lines := make([]string, len(s.rows))
	for i, row := range s.rows {
		var b strings.Builder
		for _, cell := range row {
			if cell == "" {
				cell = " "
			}
			b.WriteString(cell)
		}
		lines[i] = b.String()
	}
	return normalizeLines(strings.Join(lines, "\n"))
}

func parseParams(params string) []int {
	if params == "" {
		return nil
	}
	parts := strings.Split(params, ";")
	out := make([]int, len(parts))
	for i, part := range parts {
		out[i], _ = strconv.Atoi(part)
	}
	return out
}

func clamp(v, limit int) int {
	return max(0, min(v, limit-1))
}

var (
	csiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	oscPattern = regexp.MustCompile(`\x1b\][^\x07]*(\x07|\x1b\\)`)
)

func stripANSI(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\x0f", "")
	s = strings.ReplaceAll(s, "\x0e", "")
	return s
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
