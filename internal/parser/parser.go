// # internal/parser/parser.go
package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

type Parser struct {
	loader *GrammarLoader
}

func NewParser(loader *GrammarLoader) *Parser {
	return &Parser{loader: loader}
}

// IsSupportedPath reports whether the path belongs to a checkable source
// unit.
func (p *Parser) IsSupportedPath(path string) bool {
	return p.detectLanguage(path) != ""
}

// ParseFile parses source content into a tree the checker can walk. The
// caller owns the returned Tree and must Close it.
func (p *Parser) ParseFile(path string, content []byte) (*Tree, error) {
	lang := p.detectLanguage(path)
	if lang == "" {
		return nil, errors.New("unsupported language")
	}

	grammar := p.loader.Language(lang)
	if grammar == nil {
		return nil, fmt.Errorf("grammar not loaded: %s", lang)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, errors.New("parse failed")
	}

	return &Tree{
		Path:     path,
		Source:   content,
		ParsedAt: time.Now(),
		tree:     tree,
	}, nil
}

func (p *Parser) detectLanguage(path string) string {
	switch filepath.Ext(path) {
	case ".py":
		return "python"
	default:
		return ""
	}
}
