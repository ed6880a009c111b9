package chunk

import "strings"

// declInfo describes a declaration node found by findDeclNodes: its node,
// the symbol name/kind it defines, and (for TS/JS) the immediately
// preceding /** ... */ comment, if any.
type declInfo struct {
	node       *Node
	name       string
	kind       SymbolKind
	jsdoc      string
	jsdocStart int // byte offset where the jsdoc comment starts, -1 if none
}

// declExtractor walks a parsed tree and extracts per-language declaration
// info used to build jsdoc/code chunks.
type declExtractor struct {
	registry *LanguageRegistry
}

func newDeclExtractor(registry *LanguageRegistry) *declExtractor {
	return &declExtractor{registry: registry}
}

// findDecls finds all top-level symbol-defining nodes in the tree.
func (e *declExtractor) findDecls(tree *Tree, language string) []*declInfo {
	config, ok := e.registry.GetByName(language)
	if !ok {
		return nil
	}

	kindByType := make(map[string]SymbolKind)
	for _, t := range config.FunctionTypes {
		kindByType[t] = SymbolKindFunction
	}
	for _, t := range config.MethodTypes {
		kindByType[t] = SymbolKindFunction
	}
	for _, t := range config.ClassTypes {
		kindByType[t] = SymbolKindClass
	}
	for _, t := range config.InterfaceTypes {
		kindByType[t] = SymbolKindInterface
	}
	for _, t := range config.TypeDefTypes {
		kindByType[t] = SymbolKindType
	}
	for _, t := range config.ConstantTypes {
		kindByType[t] = SymbolKindVariable
	}
	for _, t := range config.VariableTypes {
		kindByType[t] = SymbolKindVariable
	}

	var decls []*declInfo
	for _, n := range tree.Root.Children {
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			if d := e.extractJSVariableFunction(n, tree.Source, language); d != nil {
				decls = append(decls, d)
				continue
			}
		}

		kind, isSymbol := kindByType[n.Type]
		if !isSymbol {
			continue
		}

		name := e.extractName(n, tree.Source, config, language)
		if name == "" {
			continue
		}

		decls = append(decls, &declInfo{
			node: n,
			name: name,
			kind: kind,
		})
	}

	for _, d := range decls {
		jsdoc, start := e.extractImmediateJSDoc(d.node, tree.Source, language)
		d.jsdoc = jsdoc
		d.jsdocStart = start
	}

	return decls
}

func (e *declExtractor) extractName(n *Node, source []byte, config *LanguageConfig, language string) string {
	switch language {
	case "go":
		return e.extractGoName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return e.extractJSName(n, source)
	case "python":
		return e.extractPythonName(n, source)
	case "php":
		return e.extractPHPName(n, source)
	default:
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	}
	return ""
}

func (e *declExtractor) extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		for _, child := range n.Children {
			if child.Type == "identifier" {
				return child.GetContent(source)
			}
		}
	case "method_declaration":
		for _, child := range n.Children {
			if child.Type == "field_identifier" {
				return child.GetContent(source)
			}
		}
	case "type_declaration":
		for _, child := range n.Children {
			if child.Type == "type_spec" {
				for _, gc := range child.Children {
					if gc.Type == "type_identifier" {
						return gc.GetContent(source)
					}
				}
			}
		}
	case "const_declaration":
		for _, child := range n.Children {
			if child.Type == "const_spec" {
				for _, gc := range child.Children {
					if gc.Type == "identifier" {
						return gc.GetContent(source)
					}
				}
			}
		}
	case "var_declaration":
		for _, child := range n.Children {
			if child.Type == "var_spec" {
				for _, gc := range child.Children {
					if gc.Type == "identifier" {
						return gc.GetContent(source)
					}
				}
			}
		}
	}
	return ""
}

func (e *declExtractor) extractJSName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, child := range n.Children {
			if child.Type == "variable_declarator" {
				for _, gc := range child.Children {
					if gc.Type == "identifier" {
						return gc.GetContent(source)
					}
				}
			}
		}
	}
	for _, child := range n.Children {
		if child.Type == "identifier" || child.Type == "type_identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

func (e *declExtractor) extractPythonName(n *Node, source []byte) string {
	for _, child := range n.Children {
		if child.Type == "identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

func (e *declExtractor) extractPHPName(n *Node, source []byte) string {
	for _, child := range n.Children {
		if child.Type == "name" || child.Type == "identifier" {
			return child.GetContent(source)
		}
	}
	return ""
}

// extractJSVariableFunction recognizes `const f = () => {}` / `const f = function(){}`.
func (e *declExtractor) extractJSVariableFunction(n *Node, source []byte, language string) *declInfo {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
	default:
		return nil
	}

	for _, child := range n.Children {
		if child.Type != "variable_declarator" {
			continue
		}
		var name string
		var hasFunction bool
		for _, gc := range child.Children {
			if gc.Type == "identifier" {
				name = gc.GetContent(source)
			}
			if gc.Type == "arrow_function" || gc.Type == "function" || gc.Type == "function_expression" {
				hasFunction = true
			}
		}
		if name != "" && hasFunction {
			return &declInfo{node: n, name: name, kind: SymbolKindFunction}
		}
	}
	return nil
}

// extractImmediateJSDoc returns the `/** ... */` comment immediately
// preceding n, skipping only blank lines, and the byte offset it starts at.
// Returns ("", -1) if no such comment exists or for languages other than
// the TS/JS family (jsdoc pairing is a TS/JS-only concept per spec).
func (e *declExtractor) extractImmediateJSDoc(n *Node, source []byte, language string) (string, int) {
	switch language {
	case "typescript", "tsx", "javascript", "jsx":
	default:
		return "", -1
	}

	pos := int(n.StartByte)
	// Walk backwards over blank lines.
	for pos > 0 {
		lineEnd := pos
		lineStart := lineEnd
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
		line := strings.TrimSpace(string(source[lineStart:lineEnd]))
		if line == "" {
			if lineStart == 0 {
				return "", -1
			}
			pos = lineStart - 1
			continue
		}
		if strings.HasSuffix(line, "*/") {
			// Find the matching /** by scanning backward for its start.
			commentEnd := lineEnd
			idx := strings.LastIndex(string(source[:commentEnd]), "/**")
			if idx == -1 {
				return "", -1
			}
			return string(source[idx:commentEnd]), idx
		}
		return "", -1
	}
	return "", -1
}
