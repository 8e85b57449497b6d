package menu

import (
	"context"
	"errors"
)

// ErrNodeNotFound is returned by a Tree when no node carries the label.
var ErrNodeNotFound = errors.New("tree node not found")

// Level is the depth of a node in the navigation tree.
type Level int

const (
	LevelRoot Level = iota
	LevelCategory
	LevelSub
	LevelLeaf
)

func (l Level) String() string {
	switch l {
	case LevelRoot:
		return "root"
	case LevelCategory:
		return "category"
	case LevelSub:
		return "sub"
	case LevelLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Node is one entry on the path to a report page. Expanded is only ever
// filled from the live tree.
type Node struct {
	Label    string
	Level    Level
	Expanded bool
}

// Tree is the rendered navigation control.
type Tree interface {
	// WaitReady blocks until a node with the label is visible.
	WaitReady(ctx context.Context, label string) error
	// Expanded reads the live expand state of the node.
	Expanded(ctx context.Context, label string) (bool, error)
	// Click scrolls the node's row into view and clicks it.
	Click(ctx context.Context, label string) error
	// ClickToggle clicks the node's expand icon.
	ClickToggle(ctx context.Context, label string) error
}

// Artifacts captures diagnostic state, e.g. a screenshot. It returns the
// path written.
type Artifacts interface {
	Capture(ctx context.Context, name string) (string, error)
}

// Path lists the nodes from the root entry to the leaf.
func Path(root, category, leaf string, sub []string) []Node {
	nodes := []Node{
		{Label: root, Level: LevelRoot},
		{Label: category, Level: LevelCategory},
	}
	for _, s := range sub {
		nodes = append(nodes, Node{Label: s, Level: LevelSub})
	}
	return append(nodes, Node{Label: leaf, Level: LevelLeaf})
}
