package commands

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadDocument parses a YAML or JSON file into a node graph. Aliases become
// shared nodes, so the graph can hold shared references.
func loadDocument(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.Kind == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	return &doc, nil
}

// verifyCopy checks that dup has the same shape as orig, that no node of
// dup belongs to orig, and that nodes shared in orig are shared in dup. It
// returns the number of distinct nodes.
func verifyCopy(orig, dup *yaml.Node) (int, error) {
	originals := make(map[*yaml.Node]struct{})
	stack := []*yaml.Node{orig}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil {
			continue
		}
		if _, ok := originals[n]; ok {
			continue
		}
		originals[n] = struct{}{}
		stack = append(stack, n.Alias)
		stack = append(stack, n.Content...)
	}

	type pair struct {
		a, b *yaml.Node
		path string
	}

	copies := make(map[*yaml.Node]*yaml.Node, len(originals))
	pairs := []pair{{orig, dup, "$"}}
	for len(pairs) > 0 {
		p := pairs[len(pairs)-1]
		pairs = pairs[:len(pairs)-1]

		if p.a == nil || p.b == nil {
			if p.a != p.b {
				return 0, fmt.Errorf("%s: nil mismatch", p.path)
			}
			continue
		}
		if _, ok := originals[p.b]; ok {
			return 0, fmt.Errorf("%s: copy shares a node with the original", p.path)
		}
		if seen, ok := copies[p.a]; ok {
			if seen != p.b {
				return 0, fmt.Errorf("%s: shared node was copied more than once", p.path)
			}
			continue
		}
		copies[p.a] = p.b

		a, b := p.a, p.b
		if a.Kind != b.Kind || a.Tag != b.Tag || a.Value != b.Value || a.Anchor != b.Anchor {
			return 0, fmt.Errorf("%s: node differs (%s %q vs %s %q)", p.path, a.Tag, a.Value, b.Tag, b.Value)
		}
		if len(a.Content) != len(b.Content) {
			return 0, fmt.Errorf("%s: %d children, copy has %d", p.path, len(a.Content), len(b.Content))
		}

		pairs = append(pairs, pair{a.Alias, b.Alias, p.path + "*"})
		for i := range a.Content {
			pairs = append(pairs, pair{a.Content[i], b.Content[i], fmt.Sprintf("%s[%d]", p.path, i)})
		}
	}

	return len(copies), nil
}
