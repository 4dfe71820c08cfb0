package tsfile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Record is the metadata carried in the header of one CASP TS file.
// A Record is never modified after Parse returns it; re-parsing a file
// produces a new Record.
type Record struct {
	SourceName    string   `json:"source_name"`
	Stoichiometry string   `json:"stoichiometry"`
	Author        string   `json:"author"`
	Method        string   `json:"method"`
	Scores        []string `json:"scores"`
	ModelNumber   *int     `json:"model_number,omitempty"`
}

// HasModelNumber reports whether a Model line with a valid integer was seen.
func (r *Record) HasModelNumber() bool {
	return r.ModelNumber != nil
}

// ErrUnreadableInput is returned when the content cannot be treated as text.
var ErrUnreadableInput = errors.New("unreadable input")

// maxLineSize bounds a single header line. Method paragraphs can be long.
const maxLineSize = 1024 * 1024

type label int

const (
	labelNone label = iota
	labelStoichiometry
	labelAuthor
	labelMethod
	labelScore
	labelModel
)

// Longer spellings first so "Scores" is not read as "Score" + "s".
var labels = []struct {
	text string
	kind label
}{
	{"stoichiometry", labelStoichiometry},
	{"author", labelAuthor},
	{"method", labelMethod},
	{"scores", labelScore},
	{"score", labelScore},
	{"model", labelModel},
}

type state int

const (
	seekingLabel state = iota
	inMethodContinuation
)

// Parse reads the header of a TS file from r. Lines that carry no known
// label are skipped and fields that fail to parse are left empty, so the
// only error is ErrUnreadableInput.
func Parse(r io.Reader, sourceName string) (*Record, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", sourceName, ErrUnreadableInput, err)
	}
	return parseBytes(data, sourceName)
}

// ParseString parses TS content already held in memory.
func ParseString(content, sourceName string) (*Record, error) {
	return parseBytes([]byte(content), sourceName)
}

// ReadFile parses the TS file at path, keyed by SourceName(path).
func ReadFile(path string) (*Record, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return parseBytes(data, SourceName(path))
}

// SourceName derives the directory key of a TS file from its path:
// the base name without its extension, e.g. "H0232_TS.txt" -> "H0232_TS".
func SourceName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseBytes(data []byte, sourceName string) (*Record, error) {
	switch {
	case len(data) == 0:
		return nil, fmt.Errorf("%s: %w: empty content", sourceName, ErrUnreadableInput)
	case bytes.IndexByte(data, 0) >= 0:
		return nil, fmt.Errorf("%s: %w: binary content", sourceName, ErrUnreadableInput)
	}
	if !utf8.Valid(data) {
		// Latin-1 author names and the like; keep the rest of the line.
		data = bytes.ToValidUTF8(data, []byte("\uFFFD"))
	}

	rec := &Record{SourceName: sourceName}
	var method []string
	st := seekingLabel

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if isCoordinateLine(line, st) {
			break
		}
		kind, rest := classify(line)
		if kind == labelNone {
			if st == inMethodContinuation {
				if text := strings.TrimSpace(line); text != "" {
					method = append(method, text)
				}
			}
			continue
		}
		st = seekingLabel
		switch kind {
		case labelStoichiometry:
			rec.Stoichiometry = rest
		case labelAuthor:
			rec.Author = rest
		case labelMethod:
			if rest == "" {
				st = inMethodContinuation
			} else {
				method = append(method, rest)
			}
		case labelScore:
			rec.Scores = append(rec.Scores, splitScores(rest)...)
		case labelModel:
			if n, err := strconv.Atoi(rest); err == nil {
				rec.ModelNumber = &n
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", sourceName, ErrUnreadableInput, err)
	}
	rec.Method = strings.TrimSpace(strings.Join(method, " "))
	return rec, nil
}

// classify returns the label that starts line and the trimmed value
// following it. The label must be followed by a colon, whitespace, or
// the end of the line.
func classify(line string) (label, string) {
	text := strings.TrimLeftFunc(line, unicode.IsSpace)
	for _, l := range labels {
		if len(text) < len(l.text) || !strings.EqualFold(text[:len(l.text)], l.text) {
			continue
		}
		rest := text[len(l.text):]
		if rest != "" && rest[0] != ':' && !unicode.IsSpace(rune(rest[0])) {
			continue
		}
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		rest = strings.TrimPrefix(rest, ":")
		return l.kind, strings.TrimSpace(rest)
	}
	return labelNone, ""
}

func splitScores(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// isCoordinateLine reports whether line starts the PDB records that follow
// the header. Record names are upper case. Inside a Method continuation
// only atom records end the header, since prose may start with "END".
func isCoordinateLine(line string, st state) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "ATOM", "HETATM":
		return true
	case "TER", "ENDMDL":
		return st == seekingLabel
	case "END":
		return st == seekingLabel && len(fields) == 1
	}
	return false
}
