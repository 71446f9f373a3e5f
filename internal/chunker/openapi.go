package chunker

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var errNotOpenAPI = errors.New("document has no openapi or swagger version key")

var httpMethods = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// OpenAPI renders API metadata, every operation and every reusable schema as
// separate sections. Input that cannot be parsed degrades to raw word windows
// flagged with ParseError.
func (c *Chunker) OpenAPI(fileName, text string) []Chunk {
	root, err := parseOpenAPI(text)
	if err != nil {
		return c.assemble(fileName, TypeOpenAPI, []section{{
			title: rawSectionTitle,
			text:  text,
			meta: func(base BaseMetadata) Metadata {
				return OpenAPIMetadata{BaseMetadata: base, Family: FamilyRaw, ParseError: true}
			},
		}})
	}

	doc := &apiDocument{root: root, schemaBudget: maxDocumentSchemaNodes}
	var sections []section
	sections = append(sections, doc.infoSections()...)
	sections = append(sections, doc.operationSections()...)
	sections = append(sections, doc.schemaSections()...)

	chunks := c.assemble(fileName, TypeOpenAPI, sections)
	return c.ensureNonEmpty(chunks, fileName, TypeOpenAPI, text, func(base BaseMetadata) Metadata {
		return OpenAPIMetadata{BaseMetadata: base, Family: FamilyRaw}
	})
}

func parseOpenAPI(text string) (*yaml.Node, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errNotOpenAPI
	}
	// Raw tabs are only legal as whitespace in JSON, and YAML rejects them there.
	if strings.HasPrefix(trimmed, "{") {
		trimmed = strings.ReplaceAll(trimmed, "\t", " ")
	}

	var docNode yaml.Node
	if err := yaml.Unmarshal([]byte(trimmed), &docNode); err != nil {
		return nil, fmt.Errorf("parse openapi document failed: %w", err)
	}
	if docNode.Kind != yaml.DocumentNode || len(docNode.Content) == 0 {
		return nil, errNotOpenAPI
	}
	root := deref(docNode.Content[0])
	if root.Kind != yaml.MappingNode {
		return nil, errNotOpenAPI
	}
	if lookup(root, "openapi") == nil && lookup(root, "swagger") == nil {
		return nil, errNotOpenAPI
	}
	return root, nil
}

type apiDocument struct {
	root         *yaml.Node
	schemaBudget int
}

func (d *apiDocument) infoSections() []section {
	info := lookup(d.root, "info")
	if info == nil {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "API: %s\n", scalar(lookup(info, "title")))
	if desc := scalar(lookup(info, "description")); desc != "" {
		b.WriteString(desc + "\n")
	}
	fmt.Fprintf(&b, "Version: %s\n", scalar(lookup(info, "version")))
	if servers := lookup(d.root, "servers"); servers != nil && servers.Kind == yaml.SequenceNode {
		b.WriteString("Servers:\n")
		for _, s := range servers.Content {
			fmt.Fprintf(&b, "- %s\n", scalar(lookup(deref(s), "url")))
		}
	} else if host := scalar(lookup(d.root, "host")); host != "" {
		fmt.Fprintf(&b, "Host: %s%s\n", host, scalar(lookup(d.root, "basePath")))
	}

	return []section{{
		title: "info",
		text:  b.String(),
		meta: func(base BaseMetadata) Metadata {
			return OpenAPIMetadata{BaseMetadata: base, Family: FamilyInfo}
		},
	}}
}

func (d *apiDocument) operationSections() []section {
	paths := lookup(d.root, "paths")
	if paths == nil || paths.Kind != yaml.MappingNode {
		return nil
	}

	var sections []section
	for i := 0; i+1 < len(paths.Content); i += 2 {
		path := paths.Content[i].Value
		item := d.resolve(paths.Content[i+1])
		if item == nil || item.Kind != yaml.MappingNode {
			continue
		}
		shared := seq(lookup(item, "parameters"))
		for _, method := range httpMethods {
			op := deref(lookup(item, method))
			if op == nil || op.Kind != yaml.MappingNode {
				continue
			}
			label := strings.ToUpper(method) + " " + path
			text := d.renderOperation(label, op, shared)
			m, p := method, path
			sections = append(sections, section{
				title: label,
				text:  text,
				meta: func(base BaseMetadata) Metadata {
					return OpenAPIMetadata{BaseMetadata: base, Family: FamilyOperation, Method: m, Path: p}
				},
			})
		}
	}
	return sections
}

func (d *apiDocument) renderOperation(label string, op *yaml.Node, shared []*yaml.Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Endpoint: %s\n", label)
	if v := scalar(lookup(op, "operationId")); v != "" {
		fmt.Fprintf(&b, "Operation ID: %s\n", v)
	}
	if v := scalar(lookup(op, "summary")); v != "" {
		fmt.Fprintf(&b, "Summary: %s\n", v)
	}
	if v := scalar(lookup(op, "description")); v != "" {
		fmt.Fprintf(&b, "Description: %s\n", v)
	}
	if tags := seq(lookup(op, "tags")); len(tags) > 0 {
		names := make([]string, 0, len(tags))
		for _, t := range tags {
			names = append(names, scalar(t))
		}
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(names, ", "))
	}
	if scalar(lookup(op, "deprecated")) == "true" {
		b.WriteString("Deprecated: true\n")
	}

	params := append(append([]*yaml.Node{}, shared...), seq(lookup(op, "parameters"))...)
	var bodyParam *yaml.Node
	if len(params) > 0 {
		b.WriteString("\nParameters:\n")
		for _, raw := range params {
			param := d.resolve(raw)
			if param == nil {
				continue
			}
			if scalar(lookup(param, "in")) == "body" {
				bodyParam = param
				continue
			}
			b.WriteString(d.renderParameter(param))
		}
	}

	if body := d.resolve(lookup(op, "requestBody")); body != nil {
		b.WriteString("\nRequest Body")
		if scalar(lookup(body, "required")) == "true" {
			b.WriteString(" (required)")
		}
		b.WriteString(":\n")
		if desc := scalar(lookup(body, "description")); desc != "" {
			b.WriteString("  " + desc + "\n")
		}
		d.renderContent(&b, lookup(body, "content"), 1)
	} else if bodyParam != nil {
		b.WriteString("\nRequest Body")
		if scalar(lookup(bodyParam, "required")) == "true" {
			b.WriteString(" (required)")
		}
		b.WriteString(":\n")
		renderSchema(&b, d.buildSchema(lookup(bodyParam, "schema")), 1)
	}

	if responses := lookup(op, "responses"); responses != nil && responses.Kind == yaml.MappingNode {
		b.WriteString("\nResponses:\n")
		for i := 0; i+1 < len(responses.Content); i += 2 {
			code := responses.Content[i].Value
			resp := d.resolve(responses.Content[i+1])
			fmt.Fprintf(&b, "- %s: %s\n", code, scalar(lookup(resp, "description")))
			if content := lookup(resp, "content"); content != nil {
				d.renderContent(&b, content, 1)
			} else if schema := lookup(resp, "schema"); schema != nil {
				renderSchema(&b, d.buildSchema(schema), 1)
			}
		}
	}
	return b.String()
}

func (d *apiDocument) renderParameter(param *yaml.Node) string {
	var attrs []string
	attrs = append(attrs, scalar(lookup(param, "in")))
	if scalar(lookup(param, "required")) == "true" {
		attrs = append(attrs, "required")
	}

	schema := lookup(param, "schema")
	if schema == nil {
		// Swagger 2 keeps type information on the parameter itself.
		schema = param
	}
	node := d.buildSchema(schema)
	if t := node.summary(); t != "" {
		attrs = append(attrs, t)
	}
	if len(node.enum) > 0 {
		attrs = append(attrs, "enum: "+strings.Join(node.enum, ", "))
	}
	if node.def != "" {
		attrs = append(attrs, "default: "+node.def)
	}

	line := fmt.Sprintf("- %s (%s)", scalar(lookup(param, "name")), strings.Join(attrs, ", "))
	if desc := scalar(lookup(param, "description")); desc != "" {
		line += ": " + desc
	}
	return line + "\n"
}

func (d *apiDocument) renderContent(b *strings.Builder, content *yaml.Node, indent int) {
	if content == nil || content.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(content.Content); i += 2 {
		writeLine(b, indent, content.Content[i].Value+":")
		renderSchema(b, d.buildSchema(lookup(deref(content.Content[i+1]), "schema")), indent+1)
	}
}

func (d *apiDocument) schemaSections() []section {
	schemas := lookup(lookup(d.root, "components"), "schemas")
	if schemas == nil {
		schemas = lookup(d.root, "definitions")
	}
	if schemas == nil || schemas.Kind != yaml.MappingNode {
		return nil
	}

	var sections []section
	for i := 0; i+1 < len(schemas.Content); i += 2 {
		name := schemas.Content[i].Value
		var b strings.Builder
		fmt.Fprintf(&b, "Schema: %s\n", name)
		renderSchema(&b, d.buildSchema(schemas.Content[i+1]), 0)
		sections = append(sections, section{
			title: "schema-" + name,
			text:  b.String(),
			meta: func(base BaseMetadata) Metadata {
				return OpenAPIMetadata{BaseMetadata: base, Family: FamilySchema, SchemaName: name}
			},
		})
	}
	return sections
}

// resolve follows a local $ref once. Schema references are never inlined;
// they render as named references instead.
func (d *apiDocument) resolve(n *yaml.Node) *yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return n
	}
	ref := scalar(lookup(n, "$ref"))
	if !strings.HasPrefix(ref, "#/") {
		return n
	}
	cur := d.root
	for _, part := range strings.Split(strings.TrimPrefix(ref, "#/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		cur = lookup(cur, part)
		if cur == nil {
			return n
		}
	}
	return cur
}

func deref(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func lookup(n *yaml.Node, key string) *yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return deref(n.Content[i+1])
		}
	}
	return nil
}

func scalar(n *yaml.Node) string {
	n = deref(n)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return strings.TrimSpace(n.Value)
}

func seq(n *yaml.Node) []*yaml.Node {
	n = deref(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	return n.Content
}

func writeLine(b *strings.Builder, indent int, text string) {
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(text)
	b.WriteByte('\n')
}
