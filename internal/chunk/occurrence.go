package chunk

import (
	"strings"
)

// OccurrenceRole classifies how an identifier occurrence relates to the
// symbol it names. Mirrors store.ReferenceRole one-to-one; kept as its own
// type here so the chunk package stays free of a store import.
type OccurrenceRole string

const (
	OccurrenceRoleUsage          OccurrenceRole = "usage"
	OccurrenceRoleInstantiation  OccurrenceRole = "instantiation"
	OccurrenceRoleInheritance    OccurrenceRole = "inheritance"
	OccurrenceRoleImplementation OccurrenceRole = "implementation"
	OccurrenceRoleStaticAccess   OccurrenceRole = "static-access"
	OccurrenceRoleGenericType    OccurrenceRole = "generic-type"
	OccurrenceRoleImport         OccurrenceRole = "import"
	OccurrenceRoleUsing          OccurrenceRole = "using"
)

// Occurrence is one AST-located mention of a name, found while walking a
// parsed tree. The caller (internal/index) stamps project/file IDs on when
// persisting these to the Symbol DB's identifier table.
type Occurrence struct {
	Name        string
	Role        OccurrenceRole
	Line        int // 1-indexed
	Column      int // 1-indexed
	StartByte   int // 0-indexed
	EndByte     int // 0-indexed
	ContextLine string
}

// OccurrenceExtractor walks a parsed tree and records every identifier
// mention it can classify, feeding C8's find_references support.
type OccurrenceExtractor struct {
	registry *LanguageRegistry
}

// NewOccurrenceExtractor creates an extractor using the default language registry.
func NewOccurrenceExtractor() *OccurrenceExtractor {
	return &OccurrenceExtractor{registry: DefaultRegistry()}
}

// NewOccurrenceExtractorWithRegistry creates an extractor using a custom registry.
func NewOccurrenceExtractorWithRegistry(registry *LanguageRegistry) *OccurrenceExtractor {
	return &OccurrenceExtractor{registry: registry}
}

// Extract walks the tree and returns every classified identifier occurrence.
func (e *OccurrenceExtractor) Extract(tree *Tree, source []byte) []*Occurrence {
	if tree == nil || tree.Root == nil {
		return []*Occurrence{}
	}

	var occurrences []*Occurrence

	tree.Root.Walk(func(n *Node) bool {
		occs := e.classifyNode(n, source, tree.Language)
		occurrences = append(occurrences, occs...)
		return true
	})

	return occurrences
}

func (e *OccurrenceExtractor) classifyNode(n *Node, source []byte, language string) []*Occurrence {
	switch language {
	case "go":
		return e.classifyGoNode(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return e.classifyJSNode(n, source)
	case "python":
		return e.classifyPythonNode(n, source)
	}
	return nil
}

func (e *OccurrenceExtractor) classifyGoNode(n *Node, source []byte) []*Occurrence {
	switch n.Type {
	case "call_expression":
		fn := n.FindChildByType("identifier")
		if fn == nil {
			if sel := n.FindChildByType("selector_expression"); sel != nil {
				return e.selectorOccurrence(sel, source, OccurrenceRoleUsage)
			}
			return nil
		}
		return e.identOccurrence(fn, source, OccurrenceRoleUsage)

	case "composite_literal":
		if t := n.FindChildByType("type_identifier"); t != nil {
			return e.identOccurrence(t, source, OccurrenceRoleInstantiation)
		}

	case "selector_expression":
		return e.selectorOccurrence(n, source, OccurrenceRoleStaticAccess)

	case "type_spec":
		// `type Foo Bar` or `type Foo struct { Embedded }` — embedded field
		// types on a struct_type are the closest Go gets to inheritance.
		if st := n.FindChildByType("struct_type"); st != nil {
			for _, field := range st.FindAllByType("field_declaration") {
				if t := field.FindChildByType("type_identifier"); t != nil && len(field.FindChildrenByType("field_identifier")) == 0 {
					occs := e.identOccurrence(t, source, OccurrenceRoleInheritance)
					return occs
				}
			}
		}

	case "import_spec":
		if p := n.FindChildByType("interpreted_string_literal"); p != nil {
			return e.identOccurrence(p, source, OccurrenceRoleImport)
		}

	case "type_arguments":
		var occs []*Occurrence
		for _, t := range n.FindChildrenByType("type_identifier") {
			occs = append(occs, e.identOccurrence(t, source, OccurrenceRoleGenericType)...)
		}
		return occs
	}
	return nil
}

func (e *OccurrenceExtractor) classifyJSNode(n *Node, source []byte) []*Occurrence {
	switch n.Type {
	case "call_expression":
		if id := n.FindChildByType("identifier"); id != nil {
			return e.identOccurrence(id, source, OccurrenceRoleUsage)
		}
		if m := n.FindChildByType("member_expression"); m != nil {
			return e.selectorOccurrence(m, source, OccurrenceRoleUsage)
		}

	case "new_expression":
		if id := n.FindChildByType("identifier"); id != nil {
			return e.identOccurrence(id, source, OccurrenceRoleInstantiation)
		}

	case "member_expression":
		return e.selectorOccurrence(n, source, OccurrenceRoleStaticAccess)

	case "class_heritage":
		var occs []*Occurrence
		for _, id := range n.FindAllByType("identifier") {
			occs = append(occs, e.identOccurrence(id, source, OccurrenceRoleInheritance)...)
		}
		return occs

	case "implements_clause":
		var occs []*Occurrence
		for _, id := range n.FindAllByType("type_identifier") {
			occs = append(occs, e.identOccurrence(id, source, OccurrenceRoleImplementation)...)
		}
		return occs

	case "type_arguments":
		var occs []*Occurrence
		for _, t := range n.FindChildrenByType("type_identifier") {
			occs = append(occs, e.identOccurrence(t, source, OccurrenceRoleGenericType)...)
		}
		return occs

	case "import_statement":
		var occs []*Occurrence
		for _, s := range n.FindAllByType("string") {
			occs = append(occs, e.identOccurrence(s, source, OccurrenceRoleImport)...)
		}
		return occs
	}
	return nil
}

func (e *OccurrenceExtractor) classifyPythonNode(n *Node, source []byte) []*Occurrence {
	switch n.Type {
	case "call":
		if id := n.FindChildByType("identifier"); id != nil {
			return e.identOccurrence(id, source, OccurrenceRoleUsage)
		}
		if attr := n.FindChildByType("attribute"); attr != nil {
			return e.selectorOccurrence(attr, source, OccurrenceRoleUsage)
		}

	case "attribute":
		return e.selectorOccurrence(n, source, OccurrenceRoleStaticAccess)

	case "class_definition":
		if args := n.FindChildByType("argument_list"); args != nil {
			var occs []*Occurrence
			for _, id := range args.FindChildrenByType("identifier") {
				occs = append(occs, e.identOccurrence(id, source, OccurrenceRoleInheritance)...)
			}
			return occs
		}

	case "import_statement", "import_from_statement":
		var occs []*Occurrence
		for _, id := range n.FindAllByType("dotted_name") {
			occs = append(occs, e.identOccurrence(id, source, OccurrenceRoleImport)...)
		}
		return occs
	}
	return nil
}

// identOccurrence builds a single occurrence for a leaf identifier-like node.
func (e *OccurrenceExtractor) identOccurrence(n *Node, source []byte, role OccurrenceRole) []*Occurrence {
	name := n.GetContent(source)
	name = strings.Trim(name, `"'`)
	if name == "" {
		return nil
	}
	return []*Occurrence{{
		Name:        name,
		Role:        role,
		Line:        int(n.StartPoint.Row) + 1,
		Column:      int(n.StartPoint.Column) + 1,
		StartByte:   int(n.StartByte),
		EndByte:     int(n.EndByte),
		ContextLine: contextLine(source, n.StartByte),
	}}
}

// selectorOccurrence records an occurrence for the rightmost name in a
// selector/member/attribute expression (pkg.Name, obj.attr), which is the
// part a reference search actually cares about.
func (e *OccurrenceExtractor) selectorOccurrence(n *Node, source []byte, role OccurrenceRole) []*Occurrence {
	var last *Node
	for _, child := range n.Children {
		switch child.Type {
		case "identifier", "field_identifier", "property_identifier":
			last = child
		}
	}
	if last == nil {
		return nil
	}
	return e.identOccurrence(last, source, role)
}

// contextLine returns the full source line containing the given byte offset.
func contextLine(source []byte, byteOffset uint32) string {
	start := int(byteOffset)
	for start > 0 && source[start-1] != '\n' {
		start--
	}
	end := int(byteOffset)
	for end < len(source) && source[end] != '\n' {
		end++
	}
	return strings.TrimSpace(string(source[start:end]))
}
