// # internal/parser/types.go
package parser

import (
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Tree is one parsed analysis unit. It owns the underlying tree-sitter tree;
// Close must be called when the nodes are no longer needed.
type Tree struct {
	Path     string
	Source   []byte
	ParsedAt time.Time

	tree *sitter.Tree
}

func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

func (t *Tree) Close() {
	t.tree.Close()
}

type Location struct {
	File   string
	Line   int
	Column int
}

func NodeLocation(node *sitter.Node, filePath string) Location {
	return Location{
		File:   filePath,
		Line:   int(node.StartPosition().Row) + 1,
		Column: int(node.StartPosition().Column) + 1,
	}
}
