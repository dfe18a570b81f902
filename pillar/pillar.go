// Package pillar loads the salt pillar that describes every server and the
// sites running on it.
//
// A pillar folder holds a routing file, top.sls, and one YAML fragment per
// topic:
//
//	base:
//	  '*':
//	    - global.django
//	  'drop-temp':
//	    - sites.drop_temp
//	    - config.postgres
//
// Each pattern under base is matched against the server (minion) id using
// shell style globbing, and a pattern may list several alternatives
// separated by commas. The fragments of every matching pattern are merged
// into one namespace keyed by their single top-level key. A key provided by
// two fragments for the same server is an error.
package pillar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"deploy.evalgo.org/common"
)

// TopFile is the routing file at the root of a pillar folder.
const TopFile = "top.sls"

// Pillar is the merged pillar data for one server.
type Pillar struct {
	MinionID string
	Folder   string

	data    map[string]*yaml.Node
	sources map[string]string
}

// topFile mirrors top.sls. Entries are kept as nodes because a list may mix
// fragment names with mappings such as "- match: list".
type topFile struct {
	Base map[string][]yaml.Node `yaml:"base"`
}

func readTop(folder string) (map[string][]yaml.Node, error) {
	file := filepath.Join(folder, TopFile)
	content, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.NewTaskError("Cannot find pillar file: %s", file)
		}
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	var top topFile
	if err := yaml.Unmarshal(content, &top); err != nil {
		return nil, common.NewTaskError("Cannot parse %s: %v", file, err)
	}
	return top.Base, nil
}

// sortedPatterns returns the keys of base in a stable order.
func sortedPatterns(base map[string][]yaml.Node) []string {
	patterns := make([]string, 0, len(base))
	for pattern := range base {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)
	return patterns
}

// Matches reports whether minionID matches a top.sls pattern. The whole
// pattern is tried first, then each comma separated alternative.
func Matches(minionID, pattern string) bool {
	if ok, _ := path.Match(pattern, minionID); ok {
		return true
	}
	for _, item := range strings.Split(pattern, ",") {
		if ok, _ := path.Match(strings.TrimSpace(item), minionID); ok {
			return true
		}
	}
	return false
}

// Servers returns the patterns listed in top.sls, sorted.
func Servers(folder string) ([]string, error) {
	base, err := readTop(folder)
	if err != nil {
		return nil, err
	}
	return sortedPatterns(base), nil
}

// FragmentFile maps a fragment name such as "config.django" to its file.
func FragmentFile(folder, name string) string {
	parts := append([]string{folder}, strings.Split(name, ".")...)
	return filepath.Join(parts...) + ".sls"
}

// readFragment parses one fragment. A fragment holds at most one key.
func readFragment(folder, name string) (map[string]*yaml.Node, string, error) {
	file := FragmentFile(folder, name)
	content, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, file, common.NewTaskError("Cannot find pillar file: %s", file)
		}
		return nil, file, fmt.Errorf("failed to read %s: %w", file, err)
	}
	var attr map[string]yaml.Node
	if err := yaml.Unmarshal(content, &attr); err != nil {
		return nil, file, common.NewTaskError("Cannot parse %s: %v", file, err)
	}
	if len(attr) > 1 {
		return nil, file, common.NewTaskError("Unexpected state: 'sls' file contains more than one key: %s", file)
	}
	result := make(map[string]*yaml.Node, len(attr))
	for key, value := range attr {
		node := value
		result[key] = &node
	}
	return result, file, nil
}

// Load reads the pillar in folder for the server minionID.
func Load(folder, minionID string) (*Pillar, error) {
	base, err := readTop(folder)
	if err != nil {
		return nil, err
	}

	p := &Pillar{
		MinionID: minionID,
		Folder:   folder,
		data:     map[string]*yaml.Node{},
		sources:  map[string]string{},
	}
	for _, pattern := range sortedPatterns(base) {
		if !Matches(minionID, pattern) {
			continue
		}
		for _, entry := range base[pattern] {
			// '- match: list' and similar options
			if entry.Kind != yaml.ScalarNode {
				continue
			}
			attr, file, err := readFragment(folder, entry.Value)
			if err != nil {
				return nil, err
			}
			for key, value := range attr {
				if _, exists := p.data[key]; exists {
					return nil, common.NewTaskError("key '%s' is already contained in '%s'", key, minionID)
				}
				p.data[key] = value
				p.sources[key] = file
			}
		}
	}
	common.Logger.WithFields(map[string]interface{}{
		"minion": minionID,
		"keys":   len(p.data),
	}).Debug("pillar loaded")
	return p, nil
}

// Keys returns the top-level keys, sorted.
func (p *Pillar) Keys() []string {
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Source returns the fragment file a key was loaded from.
func (p *Pillar) Source(key string) string {
	return p.sources[key]
}

// Get returns the raw node for key.
func (p *Pillar) Get(key string) (*yaml.Node, bool) {
	node, ok := p.data[key]
	return node, ok
}

// Has reports whether key is present with a truthy value: not null, false,
// zero, an empty string or an empty collection.
func (p *Pillar) Has(key string) bool {
	node, ok := p.data[key]
	return ok && Truthy(node)
}

// Decode decodes key into out. It returns false when the key is absent.
func (p *Pillar) Decode(key string, out interface{}) (bool, error) {
	node, ok := p.data[key]
	if !ok || node == nil {
		return false, nil
	}
	if err := node.Decode(out); err != nil {
		return true, common.NewTaskError("Cannot decode '%s' in %s: %v", key, p.sources[key], err)
	}
	return true, nil
}

// Require decodes key into out and fails when the key is missing or empty.
func (p *Pillar) Require(key string, out interface{}) error {
	if !p.Has(key) {
		return common.NewTaskError("Cannot find '%s' key in the pillar data", key)
	}
	_, err := p.Decode(key, out)
	return err
}

// Truthy applies the usual truth test to a YAML value.
func Truthy(node *yaml.Node) bool {
	if node == nil {
		return false
	}
	switch node.Kind {
	case yaml.DocumentNode:
		return len(node.Content) > 0 && Truthy(node.Content[0])
	case yaml.AliasNode:
		return Truthy(node.Alias)
	case yaml.MappingNode, yaml.SequenceNode:
		return len(node.Content) > 0
	}
	switch node.ShortTag() {
	case "!!null":
		return false
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return false
		}
		return b
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return false
		}
		return f != 0
	}
	return node.Value != ""
}
