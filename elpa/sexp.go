package elpa

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The archive index is a Lisp datum. This is a minimal reader for the
// subset the index uses: proper and dotted lists, vectors, symbols,
// integers and strings.

type sexp interface{}

type symbol string

// cell is a list with an optional dotted tail
type cell struct {
	items []sexp
	tail  sexp
}

type sexpReader struct {
	src []rune
	pos int
}

func (r *sexpReader) errf(format string, args ...interface{}) error {
	return fmt.Errorf("index parse error at offset %d: %s", r.pos, fmt.Sprintf(format, args...))
}

func (r *sexpReader) skipSpace() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		if c == ';' {
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
			continue
		}
		if !unicode.IsSpace(c) {
			return
		}
		r.pos++
	}
}

func (r *sexpReader) peek() (rune, bool) {
	r.skipSpace()
	if r.pos >= len(r.src) {
		return 0, false
	}
	return r.src[r.pos], true
}

func (r *sexpReader) read() (sexp, error) {
	c, ok := r.peek()
	if !ok {
		return nil, r.errf("unexpected end of input")
	}

	switch c {
	case '(':
		r.pos++
		return r.readList(')')
	case '[':
		r.pos++
		return r.readVector()
	case '"':
		r.pos++
		return r.readString()
	case ')', ']':
		return nil, r.errf("unexpected %q", c)
	default:
		return r.readAtom()
	}
}

func (r *sexpReader) readList(clause rune) (sexp, error) {
	var l cell
	for {
		c, ok := r.peek()
		if !ok {
			return nil, r.errf("unterminated list")
		}
		if c == clause {
			r.pos++
			return &l, nil
		}
		// a lone dot introduces the tail of a dotted pair
		if c == '.' && r.isLoneDot() {
			r.pos++
			tail, err := r.read()
			if err != nil {
				return nil, err
			}
			l.tail = tail
			if c, ok := r.peek(); !ok || c != clause {
				return nil, r.errf("expected %q after dotted tail", clause)
			}
			r.pos++
			return &l, nil
		}
		item, err := r.read()
		if err != nil {
			return nil, err
		}
		l.items = append(l.items, item)
	}
}

func (r *sexpReader) isLoneDot() bool {
	next := r.pos + 1
	return next >= len(r.src) ||
		unicode.IsSpace(r.src[next]) || r.src[next] == '(' || r.src[next] == '"'
}

func (r *sexpReader) readVector() (sexp, error) {
	l, err := r.readList(']')
	if err != nil {
		return nil, err
	}
	c := l.(*cell)
	if c.tail != nil {
		return nil, r.errf("vector cannot have a dotted tail")
	}
	return []sexp(c.items), nil
}

func (r *sexpReader) readString() (sexp, error) {
	var sb strings.Builder
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		r.pos++
		switch c {
		case '"':
			return sb.String(), nil
		case '\\':
			if r.pos >= len(r.src) {
				return nil, r.errf("unterminated string escape")
			}
			esc := r.src[r.pos]
			r.pos++
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(c)
		}
	}
	return nil, r.errf("unterminated string")
}

func (r *sexpReader) readAtom() (sexp, error) {
	start := r.pos
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		if unicode.IsSpace(c) || c == '(' || c == ')' || c == '[' || c == ']' || c == '"' || c == ';' {
			break
		}
		r.pos++
	}
	if r.pos == start {
		return nil, r.errf("empty atom")
	}
	tok := string(r.src[start:r.pos])

	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return n, nil
	}
	return symbol(tok), nil
}

// readSexp parses a single datum from the given text.
func readSexp(data string) (sexp, error) {
	r := &sexpReader{src: []rune(data)}
	v, err := r.read()
	if err != nil {
		return nil, err
	}
	if c, ok := r.peek(); ok {
		return nil, r.errf("trailing data starting with %q", c)
	}
	return v, nil
}
