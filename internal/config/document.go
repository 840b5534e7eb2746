package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrKeyNotSet is returned when a known key has no value in the file.
var ErrKeyNotSet = errors.New("key not set")

// Document is a config file opened for editing. Edits keep the file's
// comments and key order.
type Document struct {
	doc  *yaml.Node // document node; holds comments above the first key
	root *yaml.Node // its mapping
}

// OpenDocument reads path for editing. A missing file is an empty document.
func OpenDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newDocument(), nil
		}
		return nil, err
	}
	return parseDocument(data)
}

func newDocument() *Document {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	return &Document{
		doc:  &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}},
		root: root,
	}
}

func parseDocument(data []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if len(doc.Content) == 0 {
		d := newDocument()
		d.doc.HeadComment = doc.HeadComment
		return d, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Message: "config root must be a mapping"}
	}
	return &Document{doc: &doc, root: root}, nil
}

// Get returns the value at key: a scalar as its text, a section as YAML.
func (d *Document) Get(key string) (string, error) {
	path, err := splitKey(key)
	if err != nil {
		return "", err
	}
	n := d.root
	for _, seg := range path {
		if n = child(n, seg); n == nil {
			return "", fmt.Errorf("%s: %w", key, ErrKeyNotSet)
		}
	}
	if n.Kind == yaml.ScalarNode {
		return n.Value, nil
	}
	out, err := yaml.Marshal(n)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Set stores value at key, creating sections on the way. The value is a
// YAML scalar, so "18790" is a number and "true" a bool. The edit is
// rejected when the resulting file no longer decodes into a Config.
func (d *Document) Set(key, value string) error {
	path, err := splitKey(key)
	if err != nil {
		return err
	}
	if leaf := knownKeys()[key]; !leaf {
		return &ConfigError{Message: key + " is a section; set one of its keys"}
	}

	n := d.root
	for _, seg := range path[:len(path)-1] {
		next := child(n, seg)
		if next == nil || next.Kind != yaml.MappingNode {
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			setChild(n, seg, next)
		}
		n = next
	}
	setChild(n, path[len(path)-1], valueNode(value))

	if _, err := d.Decode(); err != nil {
		return err
	}
	return nil
}

// Unset removes key. It reports whether anything was removed.
func (d *Document) Unset(key string) (bool, error) {
	path, err := splitKey(key)
	if err != nil {
		return false, err
	}
	n := d.root
	for _, seg := range path[:len(path)-1] {
		if n = child(n, seg); n == nil || n.Kind != yaml.MappingNode {
			return false, nil
		}
	}
	last := path[len(path)-1]
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == last {
			n.Content = append(n.Content[:i], n.Content[i+2:]...)
			return true, nil
		}
	}
	return false, nil
}

// Decode returns the Config the document describes, defaults filled in.
// Environment overrides are not applied.
func (d *Document) Decode() (Config, error) {
	cfg := Defaults()
	if err := d.root.Decode(&cfg); err != nil {
		return cfg, &ConfigError{Message: "invalid value: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Save writes the document to path with owner-only permissions.
func (d *Document) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// valueNode parses a command-line value. Scalars and flow lists such as
// "[https://a.example, https://b.example]" keep their YAML type; anything
// else is stored as a plain string.
func valueNode(value string) *yaml.Node {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(value), &doc); err == nil && len(doc.Content) == 1 {
		n := doc.Content[0]
		if n.Kind == yaml.ScalarNode || n.Kind == yaml.SequenceNode {
			n.Style &^= yaml.FlowStyle
			return n
		}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func child(n *yaml.Node, key string) *yaml.Node {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func setChild(n *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			// Keep comments attached to the old value
			value.HeadComment = n.Content[i+1].HeadComment
			value.LineComment = n.Content[i+1].LineComment
			n.Content[i+1] = value
			return
		}
	}
	n.Content = append(n.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		value,
	)
}

// splitKey checks a dotted key such as "voice.apiKey" against the Config
// schema.
func splitKey(key string) ([]string, error) {
	if key == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	if _, ok := knownKeys()[key]; !ok {
		return nil, &ConfigError{Message: fmt.Sprintf("unknown config key %q", key)}
	}
	return strings.Split(key, "."), nil
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	var out []string
	for k, leaf := range knownKeys() {
		if leaf {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// knownKeys maps each dotted key of Config to whether it is a leaf.
func knownKeys() map[string]bool {
	keys := make(map[string]bool)
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "" || name == "-" {
				continue
			}
			key := prefix + name
			if f.Type.Kind() == reflect.Struct {
				keys[key] = false
				walk(f.Type, key+".")
				continue
			}
			keys[key] = true
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// DefaultValue returns the built-in value of key, or ErrKeyNotSet when the
// key has none.
func DefaultValue(key string) (string, error) {
	var root yaml.Node
	if err := root.Encode(Defaults()); err != nil {
		return "", err
	}
	d := &Document{doc: &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{&root}}, root: &root}
	return d.Get(key)
}
