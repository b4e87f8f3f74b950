// Package xmlmap decodes the LNM XML map format (spec §6 "LNM XML
// schema") into a flat list of Entry values, one per logical register,
// with module nesting already folded into dotted Path strings. It is the
// stdlib encoding/xml equivalent of LogicalNameMapParser.cc's DOM walk;
// see DESIGN.md for why encoding/xml (rather than a third-party XML
// library) is used here.
package xmlmap

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Kind is a logical register's target type (LNMBackendRegisterInfo::TargetType).
type Kind int

const (
	Register Kind = iota
	Channel
	Bit
	Constant
	Variable
)

func (k Kind) String() string {
	switch k {
	case Register:
		return "register"
	case Channel:
		return "channel"
	case Bit:
		return "bit"
	case Constant:
		return "constant"
	case Variable:
		return "variable"
	default:
		return "invalid"
	}
}

// Plugin is one `<plugin name="...">` element attached to a register.
type Plugin struct {
	Name       string
	Parameters map[string]string
}

// Value is one `<value index="i">` entry of a constant/variable.
type Value struct {
	Index int
	Text  string
}

// Entry is one parsed logical register, named by its dot-joined module
// path (e.g. "Board.ADC.Channel0").
type Entry struct {
	Path string
	Kind Kind

	TargetDevice   string
	TargetRegister string
	FirstIndex     int
	NumberOfElements int
	TargetChannel  int
	TargetBit      int

	ValueType string
	Values    []Value

	Plugins []Plugin
}

// refMarker brackets an unresolved <ref> name so a second pass can
// substitute it once every <constant> entry in the file is known; NUL is
// never legal in XML character data, so it cannot collide with real text.
const refMarker = "\x00"

var refPattern = regexp.MustCompile(refMarker + `([^` + refMarker + `]*)` + refMarker)

// Decode parses an entire `<logicalNameMap>` document, substituting
// `<par>` nodes against parameters immediately and `<ref>` nodes against
// sibling `<constant>` entries once the whole file has been read (spec
// §6: "<ref> inlines a constant ... <par> inlines a CDD parameter").
func Decode(r io.Reader, parameters map[string]string) ([]Entry, error) {
	d := xml.NewDecoder(r)
	var entries []Entry

	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("xmlmap: missing root element <logicalNameMap>")
		}
		if err != nil {
			return nil, fmt.Errorf("xmlmap: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "logicalNameMap" {
			return nil, fmt.Errorf("xmlmap: expected root element <logicalNameMap>, got <%s>", start.Name.Local)
		}
		if err := walkModule(d, start, "", parameters, &entries); err != nil {
			return nil, err
		}
		break
	}

	if err := resolveRefs(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func walkModule(d *xml.Decoder, start xml.StartElement, pathPrefix string, parameters map[string]string, entries *[]Entry) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return fmt.Errorf("xmlmap: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "module" {
				name := attrValue(t, "name")
				if name == "" {
					return fmt.Errorf("xmlmap: <module> missing required 'name' attribute")
				}
				if err := walkModule(d, t, joinPath(pathPrefix, name), parameters, entries); err != nil {
					return err
				}
				continue
			}
			entry, err := parseRegister(d, t, pathPrefix, parameters)
			if err != nil {
				return err
			}
			*entries = append(*entries, entry)
		case xml.EndElement:
			if t.Name == start.Name {
				return nil
			}
		}
	}
}

func attrValue(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// rawRegister mirrors the handful of subnode shapes every register kind
// actually uses; unused fields for a given Kind are simply left zero.
type rawRegister struct {
	Name             string     `xml:"name,attr"`
	TargetDevice     string     `xml:"targetDevice,innerxml"`
	TargetRegister   string     `xml:"targetRegister,innerxml"`
	TargetStartIndex string     `xml:"targetStartIndex,innerxml"`
	NumberOfElements string     `xml:"numberOfElements,innerxml"`
	TargetChannel    string     `xml:"targetChannel,innerxml"`
	TargetBit        string     `xml:"targetBit,innerxml"`
	Type             string     `xml:"type,innerxml"`
	Values           []rawValue `xml:"value"`
	Plugins          []rawPlugin `xml:"plugin"`
}

type rawValue struct {
	Index *int   `xml:"index,attr"`
	Text  string `xml:",innerxml"`
}

type rawPlugin struct {
	Name       string        `xml:"name,attr"`
	Parameters []rawParam    `xml:"parameter"`
}

type rawParam struct {
	Name string `xml:"name,attr"`
	Text string `xml:",innerxml"`
}

func parseRegister(d *xml.Decoder, start xml.StartElement, pathPrefix string, parameters map[string]string) (Entry, error) {
	var raw rawRegister
	if err := d.DecodeElement(&raw, &start); err != nil {
		return Entry{}, fmt.Errorf("xmlmap: decoding <%s>: %w", start.Name.Local, err)
	}
	if raw.Name == "" {
		return Entry{}, fmt.Errorf("xmlmap: <%s> missing required 'name' attribute", start.Name.Local)
	}

	entry := Entry{Path: joinPath(pathPrefix, raw.Name)}

	resolve := func(s string) (string, error) { return resolvePar(s, parameters) }

	var err error
	switch start.Name.Local {
	case "redirectedRegister":
		entry.Kind = Register
		if entry.TargetDevice, err = resolve(raw.TargetDevice); err != nil {
			return Entry{}, err
		}
		if entry.TargetRegister, err = resolve(raw.TargetRegister); err != nil {
			return Entry{}, err
		}
		entry.FirstIndex, err = optionalInt(raw.TargetStartIndex, 0, resolve)
		if err != nil {
			return Entry{}, err
		}
		entry.NumberOfElements, err = optionalInt(raw.NumberOfElements, 0, resolve)
		if err != nil {
			return Entry{}, err
		}

	case "redirectedChannel":
		entry.Kind = Channel
		if entry.TargetDevice, err = resolve(raw.TargetDevice); err != nil {
			return Entry{}, err
		}
		if entry.TargetRegister, err = resolve(raw.TargetRegister); err != nil {
			return Entry{}, err
		}
		entry.TargetChannel, err = requiredInt(raw.TargetChannel, "targetChannel", resolve)
		if err != nil {
			return Entry{}, err
		}
		entry.FirstIndex, err = optionalInt(raw.TargetStartIndex, 0, resolve)
		if err != nil {
			return Entry{}, err
		}
		entry.NumberOfElements, err = optionalInt(raw.NumberOfElements, 0, resolve)
		if err != nil {
			return Entry{}, err
		}

	case "redirectedBit":
		entry.Kind = Bit
		if entry.TargetDevice, err = resolve(raw.TargetDevice); err != nil {
			return Entry{}, err
		}
		if entry.TargetRegister, err = resolve(raw.TargetRegister); err != nil {
			return Entry{}, err
		}
		entry.TargetBit, err = requiredInt(raw.TargetBit, "targetBit", resolve)
		if err != nil {
			return Entry{}, err
		}

	case "constant", "variable":
		if start.Name.Local == "constant" {
			entry.Kind = Constant
		} else {
			entry.Kind = Variable
		}
		valueType, err := resolve(raw.Type)
		if err != nil {
			return Entry{}, err
		}
		if valueType == "integer" {
			valueType = "int32"
		}
		entry.ValueType = valueType
		entry.NumberOfElements, err = optionalInt(raw.NumberOfElements, 1, resolve)
		if err != nil {
			return Entry{}, err
		}
		entry.Values = make([]Value, len(raw.Values))
		for i, rv := range raw.Values {
			text, err := resolveParAndKeepRef(rv.Text, parameters)
			if err != nil {
				return Entry{}, err
			}
			index := i
			if rv.Index != nil {
				index = *rv.Index
			}
			entry.Values[i] = Value{Index: index, Text: text}
		}

	default:
		return Entry{}, fmt.Errorf("xmlmap: unknown logical register element <%s>", start.Name.Local)
	}

	for _, rp := range raw.Plugins {
		if rp.Name == "" {
			return Entry{}, fmt.Errorf("xmlmap: <plugin> under %q missing 'name' attribute", entry.Path)
		}
		params := make(map[string]string, len(rp.Parameters))
		for _, p := range rp.Parameters {
			if p.Name == "" {
				return Entry{}, fmt.Errorf("xmlmap: <parameter> under plugin %q missing 'name' attribute", rp.Name)
			}
			text, err := resolveParAndKeepRef(p.Text, parameters)
			if err != nil {
				return Entry{}, err
			}
			params[p.Name] = text
		}
		entry.Plugins = append(entry.Plugins, Plugin{Name: rp.Name, Parameters: params})
	}

	return entry, nil
}

// resolvePar substitutes every `<par>` node in an innerxml fragment and
// rejects `<ref>` (not legal outside constant/variable value/plugin-
// parameter text per the schema).
func resolvePar(innerXML string, parameters map[string]string) (string, error) {
	text, refs, err := resolveInner(innerXML, parameters, false)
	if err != nil {
		return "", err
	}
	if len(refs) > 0 {
		return "", fmt.Errorf("xmlmap: <ref> is not allowed here")
	}
	return text, nil
}

// resolveParAndKeepRef substitutes `<par>` immediately and leaves `<ref>`
// markers in place for the second pass in resolveRefs.
func resolveParAndKeepRef(innerXML string, parameters map[string]string) (string, error) {
	text, _, err := resolveInner(innerXML, parameters, true)
	return text, err
}

// resolveInner walks the token stream of an element's inner XML,
// concatenating character data and substituting <par>/<ref> children
// inline, mirroring getValueFromXmlSubnode's child-node loop.
func resolveInner(innerXML string, parameters map[string]string, keepRefs bool) (string, []string, error) {
	if !strings.Contains(innerXML, "<") {
		return innerXML, nil, nil
	}
	d := xml.NewDecoder(strings.NewReader("<x>" + innerXML + "</x>"))
	var sb strings.Builder
	var refs []string
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("xmlmap: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			switch t.Name.Local {
			case "par":
				name, err := elementText(d, t)
				if err != nil {
					return "", nil, err
				}
				value, ok := parameters[name]
				if !ok {
					return "", nil, fmt.Errorf("xmlmap: parameter %q could not be resolved", name)
				}
				sb.WriteString(value)
			case "ref":
				name, err := elementText(d, t)
				if err != nil {
					return "", nil, err
				}
				if !keepRefs {
					return "", nil, fmt.Errorf("xmlmap: <ref> is not allowed here")
				}
				sb.WriteString(refMarker + name + refMarker)
				refs = append(refs, name)
			default:
				return "", nil, fmt.Errorf("xmlmap: unexpected element <%s> in text content", t.Name.Local)
			}
		}
	}
	return sb.String(), refs, nil
}

func elementText(d *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return "", fmt.Errorf("xmlmap: %w", err)
	}
	return strings.TrimSpace(s), nil
}

func optionalInt(raw string, def int, resolve func(string) (string, error)) (int, error) {
	s, err := resolve(raw)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func requiredInt(raw, field string, resolve func(string) (string, error)) (int, error) {
	s, err := resolve(raw)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("xmlmap: missing required element %q", field)
	}
	return strconv.Atoi(s)
}

// resolveRefs substitutes every refMarker-bracketed name left by
// resolveParAndKeepRef against the first value of the matching constant
// entry (spec: "<ref> inlines a constant"). Constants using plugins are
// rejected as a ref target, matching LogicalNameMapParser.cc.
func resolveRefs(entries []Entry) error {
	constants := map[string]string{}
	for _, e := range entries {
		if e.Kind == Constant && len(e.Plugins) == 0 && len(e.Values) > 0 {
			constants[e.Path] = e.Values[0].Text
		}
	}

	substitute := func(s string) (string, error) {
		if !strings.Contains(s, refMarker) {
			return s, nil
		}
		var firstErr error
		out := refPattern.ReplaceAllStringFunc(s, func(m string) string {
			name := refPattern.FindStringSubmatch(m)[1]
			value, ok := constants[name]
			if !ok {
				if firstErr == nil {
					firstErr = fmt.Errorf("xmlmap: reference to constant %q could not be resolved", name)
				}
				return ""
			}
			return value
		})
		return out, firstErr
	}

	for i := range entries {
		var err error
		if entries[i].TargetDevice, err = substitute(entries[i].TargetDevice); err != nil {
			return err
		}
		if entries[i].TargetRegister, err = substitute(entries[i].TargetRegister); err != nil {
			return err
		}
		for j := range entries[i].Values {
			if entries[i].Values[j].Text, err = substitute(entries[i].Values[j].Text); err != nil {
				return err
			}
		}
		for j := range entries[i].Plugins {
			for k, v := range entries[i].Plugins[j].Parameters {
				nv, err := substitute(v)
				if err != nil {
					return err
				}
				entries[i].Plugins[j].Parameters[k] = nv
			}
		}
	}
	return nil
}
