package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/beevik/etree"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/types"
)

const (
	defaultRootTag = "root"
	arrayItemTag   = "item"
	textKey        = "#text"
	attrPrefix     = "@"
)

// JSONToXML converts generic JSON values to XML documents and back.
//
// Adapt produces a string. Object keys are written in sorted order; keys
// prefixed with "@" become attributes and "#text" becomes character data.
// Arrays repeat the element tag once per item.
//
// Reverse accepts a string or []byte and returns {rootTag: value}.
type JSONToXML struct {
	edge
	rootTag   string
	namespace string
	indent    int
}

func NewJSONToXML(cfg config.AdapterConfig) *JSONToXML {
	a := &JSONToXML{
		edge:      newEdge(JSON, XML, 0.9, cfg),
		rootTag:   cfg.RootTag,
		namespace: cfg.Namespace,
		indent:    cfg.Indent,
	}
	if a.rootTag == "" {
		a.rootTag = defaultRootTag
	}
	if a.namespace == "" {
		if ns, ok := a.target.Metadata["namespace"].(string); ok {
			a.namespace = ns
		}
	}
	return a
}

func (a *JSONToXML) Adapt(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	value, err := normalizeJSON(data)
	if err != nil {
		return nil, err
	}

	rootTag := a.rootTag
	if v, ok := actx.Rule("root_tag"); ok {
		if s, ok := v.(string); ok && s != "" {
			rootTag = s
		}
	}

	enc := xmlEncoder{strict: actx.IsStrict()}
	tag, err := enc.tagName(rootTag)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	root := doc.CreateElement(tag)
	if actx != nil && actx.PreserveMetadata && a.namespace != "" {
		root.CreateAttr("xmlns", a.namespace)
	}
	if err := enc.fill(root, value); err != nil {
		return nil, err
	}

	if indent := a.indentFor(actx); indent > 0 {
		doc.Indent(indent)
	}
	out, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("write xml: %w", err)
	}
	return applyHandler(actx, "json-xml", strings.TrimSuffix(out, "\n"))
}

func (a *JSONToXML) Reverse(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	text, err := textPayload(data)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, fmt.Errorf("%w: parse xml: %v", ErrUnsupportedPayload, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("parse xml: %w: no root element", ErrUnsupportedPayload)
	}

	preserve := actx != nil && actx.PreserveMetadata
	out := map[string]any{root.Tag: elementValue(root, preserve)}
	return applyHandler(actx, "json-xml.reverse", out)
}

func (a *JSONToXML) indentFor(actx *types.AdapterContext) int {
	v, ok := actx.Rule("indent")
	if !ok {
		return a.indent
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return a.indent
}

type xmlEncoder struct {
	strict bool
}

func (e xmlEncoder) fill(el *etree.Element, v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for _, k := range sortedKeys(t) {
			val := t[k]
			switch {
			case strings.HasPrefix(k, attrPrefix):
				name, err := e.tagName(k[len(attrPrefix):])
				if err != nil {
					return err
				}
				el.CreateAttr(name, scalarText(val))
			case k == textKey:
				el.CreateText(scalarText(val))
			default:
				if err := e.appendValue(el, k, val); err != nil {
					return err
				}
			}
		}
		return nil
	case []any:
		for _, item := range t {
			if err := e.appendValue(el, arrayItemTag, item); err != nil {
				return err
			}
		}
		return nil
	default:
		el.SetText(scalarText(t))
		return nil
	}
}

func (e xmlEncoder) appendValue(parent *etree.Element, key string, val any) error {
	tag, err := e.tagName(key)
	if err != nil {
		return err
	}
	if items, ok := val.([]any); ok {
		if len(items) == 0 {
			parent.CreateElement(tag)
			return nil
		}
		for _, item := range items {
			if err := e.fill(parent.CreateElement(tag), item); err != nil {
				return err
			}
		}
		return nil
	}
	return e.fill(parent.CreateElement(tag), val)
}

// tagName validates an XML name. Lenient mode replaces offending runes with
// underscores instead of failing.
func (e xmlEncoder) tagName(name string) (string, error) {
	if validXMLName(name) {
		return name, nil
	}
	if e.strict {
		return "", fmt.Errorf("%w: invalid xml name %q", ErrUnsupportedPayload, name)
	}
	var b strings.Builder
	for i, r := range name {
		if isNameRune(r, i == 0) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_", nil
	}
	return b.String(), nil
}

func validXMLName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if !isNameRune(r, i == 0) {
			return false
		}
	}
	return true
}

func isNameRune(r rune, first bool) bool {
	if unicode.IsLetter(r) || r == '_' {
		return true
	}
	if first {
		return false
	}
	return unicode.IsDigit(r) || r == '-' || r == '.' || r == ':'
}

func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}

func elementValue(el *etree.Element, preserveNS bool) any {
	fields := make(map[string]any)
	for _, attr := range el.Attr {
		if !preserveNS && (attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns")) {
			continue
		}
		fields[attrPrefix+attr.FullKey()] = attr.Value
	}

	var text strings.Builder
	groups := make(map[string][]any)
	var order []string
	for _, tok := range el.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			text.WriteString(t.Data)
		case *etree.Element:
			if _, seen := groups[t.Tag]; !seen {
				order = append(order, t.Tag)
			}
			groups[t.Tag] = append(groups[t.Tag], elementValue(t, preserveNS))
		}
	}

	trimmed := strings.TrimSpace(text.String())
	if len(fields) == 0 && len(order) == 0 {
		return trimmed
	}
	for _, tag := range order {
		if vals := groups[tag]; len(vals) == 1 {
			fields[tag] = vals[0]
		} else {
			fields[tag] = vals
		}
	}
	if trimmed != "" {
		fields[textKey] = trimmed
	}
	return fields
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
