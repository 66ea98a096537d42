// internal/content/page.go
package content

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnterminatedFrontMatter is returned when an opening front matter
// delimiter has no closing delimiter.
var ErrUnterminatedFrontMatter = errors.New("unterminated front matter")

// Format identifies the front matter encoding.
type Format string

const (
	FormatNone Format = ""
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Page is a source file split into front matter and body.
type Page struct {
	Path   string
	Front  map[string]any
	Body   string
	Format Format
}

// HasFrontMatter reports whether the file opened with a front matter block.
// Only such files are rendered as templates.
func (p *Page) HasFrontMatter() bool {
	return p.Format != FormatNone
}

// Layout returns the layout name from front matter.
func (p *Page) Layout() string {
	return p.str("layout")
}

// Title returns the title from front matter.
func (p *Page) Title() string {
	return p.str("title")
}

// Permalink returns the permalink from front matter.
func (p *Page) Permalink() string {
	return p.str("permalink")
}

// Draft reports whether front matter marks the page as a draft.
func (p *Page) Draft() bool {
	v, _ := p.Front["draft"].(bool)
	return v
}

func (p *Page) str(key string) string {
	v, _ := p.Front[key].(string)
	return v
}

// Parse splits data into front matter and body. Front matter is YAML between
// "---" lines or TOML between "+++" lines, and must start on the first line.
func Parse(path string, data []byte) (*Page, error) {
	page := &Page{Path: path, Front: map[string]any{}}

	delim, format := detect(data)
	if format == FormatNone {
		page.Body = string(data)
		return page, nil
	}

	rest := data[len(delim):]
	rest = skipLineEnd(rest)

	end := findClosing(rest, delim)
	if end < 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrUnterminatedFrontMatter)
	}
	front := rest[:end]
	body := skipLineEnd(rest[end+len(delim):])

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(front, &page.Front); err != nil {
			return nil, fmt.Errorf("parsing yaml front matter in %s: %w", path, err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(front, &page.Front); err != nil {
			return nil, fmt.Errorf("parsing toml front matter in %s: %w", path, err)
		}
	}
	if page.Front == nil {
		page.Front = map[string]any{}
	}

	page.Format = format
	page.Body = string(body)
	return page, nil
}

func detect(data []byte) (string, Format) {
	for _, c := range []struct {
		delim  string
		format Format
	}{
		{"---", FormatYAML},
		{"+++", FormatTOML},
	} {
		if !bytes.HasPrefix(data, []byte(c.delim)) {
			continue
		}
		after := data[len(c.delim):]
		if len(after) == 0 || after[0] == '\n' || bytes.HasPrefix(after, []byte("\r\n")) {
			return c.delim, c.format
		}
	}
	return "", FormatNone
}

// findClosing returns the offset of a line consisting only of delim.
func findClosing(data []byte, delim string) int {
	offset := 0
	for offset <= len(data) {
		line := data[offset:]
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		if string(bytes.TrimRight(line, "\r")) == delim {
			return offset
		}
		next := bytes.IndexByte(data[offset:], '\n')
		if next < 0 {
			return -1
		}
		offset += next + 1
	}
	return -1
}

func skipLineEnd(data []byte) []byte {
	if bytes.HasPrefix(data, []byte("\r\n")) {
		return data[2:]
	}
	if bytes.HasPrefix(data, []byte("\n")) {
		return data[1:]
	}
	return data
}
