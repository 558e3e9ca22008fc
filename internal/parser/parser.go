// Package parser reads world-info entry files: YAML frontmatter carrying the
// raw entry fields followed by a markdown body that becomes the content.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Document struct {
	// Fields is the raw entry payload, ready for normalization.
	Fields     map[string]any
	UID        int
	Title      string
	Body       string
	SourceFile string
}

var (
	ErrNoFrontmatter = errors.New("no frontmatter found")
	ErrInvalidYAML   = errors.New("invalid YAML in frontmatter")
	ErrMissingUID    = errors.New("frontmatter missing required 'uid' field")
)

func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.SourceFile = path
	return doc, nil
}

func Parse(content []byte) (*Document, error) {
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}

	rest := trimmed[len("---\n"):]
	end := bytes.Index(rest, []byte("---\n"))
	if end == -1 {
		return nil, ErrNoFrontmatter
	}

	yamlBytes := rest[:end]
	body := strings.TrimSpace(string(rest[end+len("---\n"):]))

	var fields map[string]any
	if err := yaml.Unmarshal(yamlBytes, &fields); err != nil {
		return nil, ErrInvalidYAML
	}
	if fields == nil {
		fields = map[string]any{}
	}

	uid, err := parseUID(fields["uid"])
	if err != nil {
		return nil, err
	}

	for _, name := range []string{"key", "keysecondary"} {
		if err := checkKeys(name, fields[name]); err != nil {
			return nil, err
		}
	}

	title, _ := fields["title"].(string)
	title = strings.TrimSpace(title)
	delete(fields, "title")
	if _, ok := fields["comment"]; !ok && title != "" {
		fields["comment"] = title
	}
	if body != "" {
		fields["content"] = body
	}
	fields["uid"] = uid

	return &Document{
		Fields: fields,
		UID:    uid,
		Title:  title,
		Body:   body,
	}, nil
}

func parseUID(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, ErrMissingUID
	case int:
		if v < 0 {
			return 0, fmt.Errorf("uid must be non-negative, got %d", v)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("uid must be an integer, got %T", value)
	}
}

func checkKeys(name string, value any) error {
	switch v := value.(type) {
	case nil, string:
		return nil
	case []any:
		for _, item := range v {
			if _, ok := item.(string); !ok {
				return fmt.Errorf("%s must be strings", name)
			}
		}
		return nil
	default:
		return fmt.Errorf("%s must be string or list of strings", name)
	}
}
