package chunker

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// maxSchemaDepth bounds traversal of nested or alias-cyclic schemas.
	maxSchemaDepth = 8
	// maxSchemaNodes bounds one traversal, however wide the schema fans out.
	maxSchemaNodes = 256
	// maxDocumentSchemaNodes bounds all traversals of one document.
	maxDocumentSchemaNodes = 20000
)

type schemaKind int

const (
	schemaScalar schemaKind = iota
	schemaObject
	schemaArray
	schemaRef
	schemaComposite
	schemaTruncated
)

type schemaProperty struct {
	name string
	node *schemaNode
}

type schemaNode struct {
	kind        schemaKind
	typ         string
	format      string
	description string
	enum        []string
	def         string
	bounds      []string
	ref         string
	required    []string
	properties  []schemaProperty
	items       *schemaNode
	combinator  string
	variants    []*schemaNode
}

var boundKeys = []string{"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "minLength", "maxLength", "minItems", "maxItems", "pattern"}

// schemaBuilder carries the state of one traversal. An anchored node is
// expanded the first time it is reached and rendered as a reference after.
type schemaBuilder struct {
	remaining int
	expanded  map[*yaml.Node]bool
}

// buildSchema draws from the document's node budget. Once it is spent every
// further schema renders as truncated.
func (d *apiDocument) buildSchema(n *yaml.Node) *schemaNode {
	limit := min(maxSchemaNodes, d.schemaBudget)
	b := &schemaBuilder{remaining: limit, expanded: make(map[*yaml.Node]bool)}
	s := b.build(n, 0)
	d.schemaBudget -= limit - b.remaining
	return s
}

func (b *schemaBuilder) build(n *yaml.Node, depth int) *schemaNode {
	n = deref(n)
	if n == nil {
		return &schemaNode{kind: schemaScalar}
	}
	if depth >= maxSchemaDepth || b.remaining <= 0 {
		return &schemaNode{kind: schemaTruncated}
	}
	b.remaining--
	if n.Kind != yaml.MappingNode {
		return &schemaNode{kind: schemaScalar, typ: scalar(n)}
	}

	if ref := scalar(lookup(n, "$ref")); ref != "" {
		return &schemaNode{kind: schemaRef, ref: refName(ref)}
	}
	if n.Anchor != "" {
		if b.expanded[n] {
			return &schemaNode{kind: schemaRef, ref: n.Anchor}
		}
		b.expanded[n] = true
	}

	s := &schemaNode{
		kind:        schemaScalar,
		typ:         scalar(lookup(n, "type")),
		format:      scalar(lookup(n, "format")),
		description: scalar(lookup(n, "description")),
		def:         scalar(lookup(n, "default")),
	}
	for _, v := range seq(lookup(n, "enum")) {
		s.enum = append(s.enum, scalar(v))
	}
	for _, key := range boundKeys {
		if v := scalar(lookup(n, key)); v != "" {
			s.bounds = append(s.bounds, key+"="+v)
		}
	}
	for _, v := range seq(lookup(n, "required")) {
		s.required = append(s.required, scalar(v))
	}

	for _, comb := range []string{"allOf", "oneOf", "anyOf"} {
		if variants := seq(lookup(n, comb)); len(variants) > 0 {
			s.kind = schemaComposite
			s.combinator = comb
			for _, v := range variants {
				s.variants = append(s.variants, b.build(v, depth+1))
			}
			return s
		}
	}

	if props := lookup(n, "properties"); props != nil && props.Kind == yaml.MappingNode {
		s.kind = schemaObject
		if s.typ == "" {
			s.typ = "object"
		}
		for i := 0; i+1 < len(props.Content); i += 2 {
			s.properties = append(s.properties, schemaProperty{
				name: props.Content[i].Value,
				node: b.build(props.Content[i+1], depth+1),
			})
		}
	}
	if items := lookup(n, "items"); items != nil {
		s.kind = schemaArray
		if s.typ == "" {
			s.typ = "array"
		}
		s.items = b.build(items, depth+1)
	}
	return s
}

func refName(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}

// summary is the one-line type label used for parameters and properties.
func (s *schemaNode) summary() string {
	switch s.kind {
	case schemaRef:
		return s.ref
	case schemaArray:
		if s.items != nil {
			if inner := s.items.summary(); inner != "" {
				return "array of " + inner
			}
		}
		return "array"
	case schemaComposite:
		return s.combinator
	case schemaTruncated:
		return ""
	}
	if s.format != "" && s.typ != "" {
		return s.typ + " (" + s.format + ")"
	}
	return s.typ
}

func renderSchema(b *strings.Builder, s *schemaNode, indent int) {
	if s == nil {
		return
	}
	switch s.kind {
	case schemaTruncated:
		writeLine(b, indent, "(nested schema truncated)")
		return
	case schemaRef:
		writeLine(b, indent, "Reference: "+s.ref)
		return
	}

	if t := s.summary(); t != "" {
		writeLine(b, indent, "Type: "+t)
	}
	if s.description != "" {
		writeLine(b, indent, "Description: "+s.description)
	}
	if len(s.enum) > 0 {
		writeLine(b, indent, "Enum: "+strings.Join(s.enum, ", "))
	}
	if s.def != "" {
		writeLine(b, indent, "Default: "+s.def)
	}
	if len(s.bounds) > 0 {
		writeLine(b, indent, "Constraints: "+strings.Join(s.bounds, ", "))
	}
	if len(s.required) > 0 {
		writeLine(b, indent, "Required: "+strings.Join(s.required, ", "))
	}

	switch s.kind {
	case schemaObject:
		writeLine(b, indent, "Properties:")
		for _, p := range s.properties {
			label := "- " + p.name
			if slices.Contains(s.required, p.name) {
				label += " (required)"
			}
			writeLine(b, indent+1, label+":")
			renderSchema(b, p.node, indent+2)
		}
	case schemaArray:
		writeLine(b, indent, "Items:")
		renderSchema(b, s.items, indent+1)
	case schemaComposite:
		for i, v := range s.variants {
			writeLine(b, indent, fmt.Sprintf("%s option %d:", s.combinator, i+1))
			renderSchema(b, v, indent+1)
		}
	}
}
