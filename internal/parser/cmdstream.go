package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"nputrace/internal/model"
)

// ErrMalformedCommandStream is returned when the command stream dump cannot
// be tokenized, or when text content appears with no enclosing agent or
// command element to attach it to.
var ErrMalformedCommandStream = errors.New("malformed command stream")

// Container elements whose children are semantically meaningful. Elements
// closing under any other parent are structural wrappers and are dropped.
const (
	containerAgents = "AGENTS"
	containerDmaRd  = "DMA_RD_COMMANDS"
	containerDmaWr  = "DMA_WR_COMMANDS"
	containerMce    = "MCE_COMMANDS"
	containerPle    = "PLE_COMMANDS"
)

// ReadCommandStream loads and parses the command stream XML dump at path.
func ReadCommandStream(path string) (*model.CommandStream, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open command stream: %w", err)
	}

	cs, err := ParseCommandStream(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cs, nil
}

// ParseCommandStream extracts the agent list and the four firmware command
// queues from the command stream XML.
//
// Fields of an agent or command are stored as simple text-valued child
// elements, so one level of lookahead is enough: text content is recorded
// into the element two levels up the open-element stack, keyed by the name
// of the element directly enclosing it.
func ParseCommandStream(src []byte) (*model.CommandStream, error) {
	lines := splitLines(src)
	index := newLineIndex(src)
	dec := xml.NewDecoder(bytes.NewReader(src))

	type pending struct {
		name      string
		fields    map[string]string
		startLine int
		startCol  int
	}

	var (
		cs        model.CommandStream
		nameStack []string
		stack     []*pending
	)

	for {
		before := dec.InputOffset()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCommandStream, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			line, col := index.pos(skipSpace(src, before))
			stack = append(stack, &pending{
				name:      t.Name.Local,
				fields:    make(map[string]string),
				startLine: line,
				startCol:  col,
			})
			nameStack = append(nameStack, t.Name.Local)

		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				continue
			}
			if len(stack) < 2 {
				return nil, fmt.Errorf("%w: text %q outside any agent or command element", ErrMalformedCommandStream, text)
			}
			parent := stack[len(stack)-2]
			parent.fields[nameStack[len(nameStack)-1]] = text

		case xml.EndElement:
			endLine, _ := index.pos(dec.InputOffset() - 1)
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			nameStack = nameStack[:len(nameStack)-1]

			container := ""
			if len(nameStack) > 0 {
				container = nameStack[len(nameStack)-1]
			}

			elem := model.Element{
				Name:   p.name,
				Fields: p.fields,
				Raw:    rawText(lines, p.startLine, endLine, p.startCol),
			}

			switch container {
			case containerAgents:
				cs.Agents = append(cs.Agents, model.Agent{Element: elem})
			case containerDmaRd:
				cs.DmaRd.Commands = append(cs.DmaRd.Commands, elem)
			case containerDmaWr:
				cs.DmaWr.Commands = append(cs.DmaWr.Commands, elem)
			case containerMce:
				cs.Mce.Commands = append(cs.Mce.Commands, elem)
			case containerPle:
				cs.Ple.Commands = append(cs.Ple.Commands, elem)
			}
		}
	}

	return &cs, nil
}

// rawText reconstructs the verbatim source of an element spanning startLine
// through endLine, trimming the opening tag's column from every line so the
// snippet reads flush-left.
func rawText(lines []string, startLine, endLine, startCol int) string {
	var b strings.Builder
	for i := startLine; i <= endLine && i < len(lines); i++ {
		s := lines[i]
		if startCol < len(s) {
			s = s[startCol:]
		} else {
			s = ""
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String()
}

func splitLines(src []byte) []string {
	lines := strings.Split(string(src), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// skipSpace returns the offset of the first non-whitespace byte at or after
// off. The decoder reports where the previous token ended; the tag itself
// starts after any intervening whitespace.
func skipSpace(src []byte, off int64) int64 {
	for off < int64(len(src)) {
		switch src[off] {
		case ' ', '\t', '\r', '\n':
			off++
		default:
			return off
		}
	}
	return off
}

// lineIndex holds the byte offset of each line start.
type lineIndex []int64

func newLineIndex(src []byte) lineIndex {
	ix := lineIndex{0}
	for i, c := range src {
		if c == '\n' {
			ix = append(ix, int64(i)+1)
		}
	}
	return ix
}

// pos maps a byte offset to a zero-based (line, column) pair.
func (ix lineIndex) pos(off int64) (line, col int) {
	line = sort.Search(len(ix), func(i int) bool { return ix[i] > off }) - 1
	return line, int(off - ix[line])
}
