package data

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// SceneDef is a scene description file.
//
//	name: level1
//	nodes:
//	  - name: player
//	    components:
//	      - type: Light
//	      - script: actors.player
//	    children:
//	      - name: weapon
type SceneDef struct {
	Name  string    `yaml:"name"`
	Nodes []NodeDef `yaml:"nodes"`
}

// NodeDef describes one node and its subtree.
type NodeDef struct {
	Name       string         `yaml:"name"`
	Components []ComponentDef `yaml:"components"`
	Children   []NodeDef      `yaml:"children"`
}

// ComponentDef is either a native component (Type) or a script component
// (Script, a module name passed to require). Props are copied onto the
// script instance.
type ComponentDef struct {
	Type   string         `yaml:"type"`
	Script string         `yaml:"script"`
	Props  map[string]any `yaml:"props"`
}

// IsScript reports whether the definition names a script module.
func (c ComponentDef) IsScript() bool { return c.Script != "" }

// ParseScene decodes and validates a scene description.
func ParseScene(raw []byte) (*SceneDef, error) {
	var def SceneDef
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	if def.Name == "" {
		return nil, fmt.Errorf("parse scene: missing name")
	}
	for i := range def.Nodes {
		if err := def.Nodes[i].validate(def.Name); err != nil {
			return nil, err
		}
	}
	return &def, nil
}

func (n *NodeDef) validate(path string) error {
	path = path + "/" + n.Name
	for i, c := range n.Components {
		if (c.Type == "") == (c.Script == "") {
			return fmt.Errorf("scene %s: component %d needs exactly one of type or script", path, i)
		}
	}
	for i := range n.Children {
		if err := n.Children[i].validate(path); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of nodes in the description, roots included.
func (d *SceneDef) Count() int {
	var walk func([]NodeDef) int
	walk = func(ns []NodeDef) int {
		n := len(ns)
		for i := range ns {
			n += walk(ns[i].Children)
		}
		return n
	}
	return walk(d.Nodes)
}
