package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a config document.
type Format int

const (
	// FormatYAML covers both YAML and JSON documents.
	FormatYAML Format = iota
	FormatTOML
)

// FormatFor picks the document format from a file name.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}

	return FormatYAML
}

// Load reads and resolves the config document at path.
func Load(path string, env Env) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Msg: "read " + path, Err: err}
	}

	return Parse(data, FormatFor(path), env)
}

// Parse resolves a config document. When the document has variants and env
// selects one, that variant is layered over the base document. When none is
// selected the returned Config lists the variant ids instead.
func Parse(data []byte, format Format, env Env) (*Config, error) {
	root, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Env:        make(map[string]string),
		Iterations: 1,
	}

	if err := apply(cfg, root, env); err != nil {
		return nil, err
	}

	variants := lookup(root, "variants")
	if variants == nil {
		return validate(cfg)
	}

	if !env.HasVariant {
		ids, err := variantIDs(variants)
		if err != nil {
			return nil, err
		}

		if len(ids) == 0 {
			return validate(cfg)
		}

		cfg.Variants = ids

		return cfg, nil
	}

	overlay, err := selectVariant(variants, env.Variant)
	if err != nil {
		return nil, err
	}

	cfg.Variant = env.Variant

	if err := apply(cfg, overlay, env); err != nil {
		return nil, fmt.Errorf("variant %s: %w", env.Variant, err)
	}

	return validate(cfg)
}

func validate(cfg *Config) (*Config, error) {
	if len(cfg.Run) == 0 {
		return nil, errorf("'run' must be provided")
	}

	return cfg, nil
}

func decodeDocument(data []byte, format Format) (*yaml.Node, error) {
	var root yaml.Node

	switch format {
	case FormatTOML:
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, &Error{Msg: "invalid TOML", Err: err}
		}

		if err := root.Encode(doc); err != nil {
			return nil, &Error{Msg: "convert TOML document", Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, &Error{Msg: "invalid JSON or YAML", Err: err}
		}
	}

	node := resolve(&root)
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, errorf("empty document")
		}

		node = resolve(node.Content[0])
	}

	if node.Kind != yaml.MappingNode {
		return nil, errorf("document must be an object")
	}

	return node, nil
}

// apply layers the keys of obj over cfg.
func apply(cfg *Config, obj *yaml.Node, env Env) error {
	obj = resolve(obj)
	if obj.Kind != yaml.MappingNode {
		return errorf("config must be an object")
	}

	if env.HasName {
		cfg.Name = env.Name
	} else if n := lookup(obj, "name"); n != nil {
		name, err := scalarString(n, "name")
		if err != nil {
			return err
		}

		cfg.Name = name
	}

	commands := []struct {
		key string
		dst *[]string
	}{
		{key: "run", dst: &cfg.Run},
		{key: "setup", dst: &cfg.Setup},
		{key: "teardown", dst: &cfg.Teardown},
	}
	for _, c := range commands {
		n := lookup(obj, c.key)
		if n == nil {
			continue
		}

		argv, err := command(n, c.key)
		if err != nil {
			return err
		}

		*c.dst = argv
	}

	if n := lookup(obj, "timeout"); n != nil {
		timeout, err := positiveInt(n)
		if err != nil {
			return errorf("'timeout' must be a positive integer")
		}

		cfg.Timeout = timeout
	}

	if n := lookup(obj, "cachegrind"); n != nil {
		var enabled bool
		if n.ShortTag() != "!!bool" || n.Decode(&enabled) != nil {
			return errorf("'cachegrind' must be a boolean")
		}

		cfg.Cachegrind = enabled
	}

	if n := lookup(obj, "iterations"); n != nil {
		iterations, err := positiveInt(n)
		if err != nil {
			return errorf("iterations must be an integer >=1")
		}

		cfg.Iterations = iterations
	}

	if n := lookup(obj, "env"); n != nil {
		if err := applyEnv(cfg.Env, n); err != nil {
			return err
		}
	}

	return nil
}

func command(n *yaml.Node, key string) ([]string, error) {
	var argv []string

	switch n.Kind {
	case yaml.ScalarNode:
		s, err := scalarString(n, key)
		if err != nil {
			return nil, err
		}

		argv, err = shellquote.Split(s)
		if err != nil {
			return nil, &Error{
				Msg: fmt.Sprintf("'%s' must be a properly formed shell command", key),
				Err: err,
			}
		}
	case yaml.SequenceNode:
		for _, e := range n.Content {
			s, err := scalarString(resolve(e), key)
			if err != nil {
				return nil, err
			}

			argv = append(argv, s)
		}
	default:
		return nil, errorf("'%s' must be a string", key)
	}

	if len(argv) == 0 {
		return nil, errorf("'%s' must not be empty", key)
	}

	return argv, nil
}

func applyEnv(dst map[string]string, n *yaml.Node) error {
	n = resolve(n)
	if n.Kind != yaml.MappingNode {
		return errorf("env must be an object")
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := resolve(n.Content[i]), resolve(n.Content[i+1])

		if k.Kind != yaml.ScalarNode {
			return errorf("env var names must be strings")
		}

		if v.Kind != yaml.ScalarNode || v.ShortTag() == "!!null" {
			return errorf("env var %s must be a string", k.Value)
		}

		dst[k.Value] = v.Value
	}

	return nil
}

func variantIDs(n *yaml.Node) ([]string, error) {
	n = resolve(n)

	switch n.Kind {
	case yaml.SequenceNode:
		ids := make([]string, len(n.Content))
		for i := range n.Content {
			ids[i] = strconv.Itoa(i)
		}

		return ids, nil
	case yaml.MappingNode:
		ids := make([]string, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			ids = append(ids, resolve(n.Content[i]).Value)
		}

		return ids, nil
	default:
		return nil, errorf("variants must be an array or object")
	}
}

func selectVariant(n *yaml.Node, id string) (*yaml.Node, error) {
	n = resolve(n)

	switch n.Kind {
	case yaml.SequenceNode:
		idx, err := strconv.Atoi(id)
		if err != nil {
			return nil, &Error{
				Msg: fmt.Sprintf("variant %q is not an array index", id),
				Err: err,
			}
		}

		if idx < 0 || idx >= len(n.Content) {
			return nil, errorf("variant index %d does not exist in array", idx)
		}

		return n.Content[idx], nil
	case yaml.MappingNode:
		v := lookup(n, id)
		if v == nil {
			return nil, errorf("variant key %s does not exist in object", id)
		}

		return v, nil
	default:
		return nil, errorf("variants must be an array or object")
	}
}

func lookup(obj *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(obj.Content); i += 2 {
		if resolve(obj.Content[i]).Value == key {
			return resolve(obj.Content[i+1])
		}
	}

	return nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}

	return n
}

func scalarString(n *yaml.Node, key string) (string, error) {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return "", errorf("'%s' must be a string", key)
	}

	return n.Value, nil
}

var errNotPositive = errors.New("not a positive integer")

func positiveInt(n *yaml.Node) (uint64, error) {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!int" {
		return 0, errNotPositive
	}

	var v uint64
	if err := n.Decode(&v); err != nil || v == 0 {
		return 0, errNotPositive
	}

	return v, nil
}
