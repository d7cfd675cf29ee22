package mux

import (
	"regexp"
	"strconv"
	"strings"
)

// Zellij emits layouts as KDL. None of the structure we need goes beyond
// one node per line with key=value attributes and quoted arguments, so this
// is a tolerant line parser rather than a full KDL implementation.

type kdlNode struct {
	name     string
	attrs    map[string]string
	args     []string
	children []*kdlNode
}

var (
	kdlAttrRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)=(?:"((?:[^"\\]|\\.)*)"|(true|false|[0-9]+))`)
	kdlArgRe  = regexp.MustCompile(`^"((?:[^"\\]|\\.)*)"`)
	kdlNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)
)

// templates and swap layouts describe potential layouts, not the live
// session; they must not contribute panes.
var skippedNodes = map[string]bool{
	"new_tab_template":     true,
	"default_tab_template": true,
	"swap_tiled_layout":    true,
	"swap_floating_layout": true,
}

func parseKDL(input string) *kdlNode {
	root := &kdlNode{name: ""}
	stack := []*kdlNode{root}

	for _, raw := range strings.Split(input, "\n") {
		line := strings.TrimSpace(raw)
		if i := strings.Index(line, "//"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		if line == "}" {
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		opens := strings.HasSuffix(line, "{")
		if opens {
			line = strings.TrimSpace(strings.TrimSuffix(line, "{"))
		}

		node := parseNodeLine(line)
		if node == nil {
			continue
		}
		parent := stack[len(stack)-1]
		parent.children = append(parent.children, node)
		if opens {
			stack = append(stack, node)
		}
	}
	return root
}

func parseNodeLine(line string) *kdlNode {
	name := kdlNameRe.FindString(line)
	if name == "" {
		return nil
	}
	node := &kdlNode{name: name, attrs: map[string]string{}}
	rest := strings.TrimSpace(line[len(name):])

	// Bare quoted arguments come before attributes in KDL node lines.
	for {
		m := kdlArgRe.FindStringSubmatch(rest)
		if m == nil {
			break
		}
		node.args = append(node.args, m[1])
		rest = strings.TrimSpace(rest[len(m[0]):])
	}
	for _, m := range kdlAttrRe.FindAllStringSubmatch(rest, -1) {
		if m[2] != "" || strings.Contains(m[0], `=""`) {
			node.attrs[m[1]] = m[2]
		} else {
			node.attrs[m[1]] = m[3]
		}
	}
	return node
}

func (n *kdlNode) child(name string) *kdlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// parseLayoutDump converts a zellij dump-layout document into a LayoutTree.
// An empty document yields (nil): callers treat that as unavailable.
func parseLayoutDump(input string) *LayoutTree {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	doc := parseKDL(input)
	layout := doc.child("layout")
	if layout == nil {
		layout = doc
	}

	tree := &LayoutTree{}
	for _, c := range layout.children {
		if c.name != "tab" {
			continue
		}
		tree.Tabs = append(tree.Tabs, parseTabNode(c))
	}

	// A layout without explicit tab nodes is a single unnamed tab whose
	// panes sit at the root.
	if len(tree.Tabs) == 0 {
		tab := LayoutTab{Name: "default"}
		collectPanes(layout, &tab, 1.0, 1.0)
		if len(tab.Panes) > 0 {
			tree.Tabs = append(tree.Tabs, tab)
		}
	}
	return tree
}

func parseTabNode(node *kdlNode) LayoutTab {
	tab := LayoutTab{
		Name:    node.attrs["name"],
		Focused: node.attrs["focus"] == "true",
		Layout:  node.attrs["split_direction"],
	}
	if tab.Layout == "" {
		tab.Layout = "horizontal"
	}
	collectPanes(node, &tab, 1.0, 1.0)
	return tab
}

// collectPanes flattens nested splits into leaf panes, multiplying size
// fractions down the container tree. Children of a vertical split share the
// width; children of a horizontal split share the height.
func collectPanes(node *kdlNode, tab *LayoutTab, width, height float64) {
	var tiled, floating []*kdlNode
	for _, c := range node.children {
		if skippedNodes[c.name] {
			continue
		}
		switch c.name {
		case "pane":
			tiled = append(tiled, c)
		case "floating_panes":
			floating = append(floating, c)
		}
	}

	vertical := node.attrs["split_direction"] == "vertical"
	fracs := sizeFractions(tiled)

	for i, c := range tiled {
		w, h := width, height
		if vertical {
			w = width * fracs[i]
		} else {
			h = height * fracs[i]
		}
		if hasPaneChildren(c) {
			collectPanes(c, tab, w, h)
			continue
		}
		tab.Panes = append(tab.Panes, leafPane(c, w, h))
	}

	// Floating panes overlap the tab; they keep the full area and take no
	// share of the tiled split.
	for _, c := range floating {
		collectPanes(c, tab, 1.0, 1.0)
	}
}

func hasPaneChildren(node *kdlNode) bool {
	for _, c := range node.children {
		if c.name == "pane" {
			return true
		}
	}
	return false
}

// sizeFractions resolves size="N%" attributes against siblings; children
// without an explicit size share the remaining area equally.
func sizeFractions(nodes []*kdlNode) []float64 {
	fracs := make([]float64, len(nodes))
	remaining := 1.0
	unsized := 0
	for i, n := range nodes {
		if f, ok := parsePercent(n.attrs["size"]); ok {
			fracs[i] = f
			remaining -= f
		} else {
			unsized++
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	if unsized > 0 {
		share := remaining / float64(unsized)
		for i, n := range nodes {
			if _, ok := parsePercent(n.attrs["size"]); !ok {
				fracs[i] = share
			}
		}
	}
	return fracs
}

func parsePercent(s string) (float64, bool) {
	if !strings.HasSuffix(s, "%") {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	return v / 100.0, true
}

func leafPane(node *kdlNode, width, height float64) LayoutPane {
	p := LayoutPane{
		Name:    node.attrs["name"],
		Cwd:     node.attrs["cwd"],
		Focused: node.attrs["focus"] == "true",
		Width:   width,
		Height:  height,
	}

	// A running command appears either as an attribute or a child node,
	// with arguments in an args child.
	cmd := node.attrs["command"]
	if cmd == "" {
		if c := node.child("command"); c != nil && len(c.args) > 0 {
			cmd = c.args[0]
		}
	}
	if cmd != "" {
		if argsNode := node.child("args"); argsNode != nil && len(argsNode.args) > 0 {
			cmd += " " + strings.Join(argsNode.args, " ")
		}
		p.Command = cmd
	}
	return p
}
