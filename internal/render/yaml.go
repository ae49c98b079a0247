package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"sniff-go/internal/changes"
)

// YAMLFormatter writes the same structure as JSONFormatter in YAML. Field
// and path order follow the JSON form.
type YAMLFormatter struct {
	opts Options
}

// Format writes the formatted output to w.
func (f *YAMLFormatter) Format(w io.Writer, cs *changes.Changeset[changes.Timestamp]) error {
	data, err := json.Marshal(View(cs, f.opts.Location))
	if err != nil {
		return fmt.Errorf("encoding changeset: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	node, err := jsonToNode(dec)
	if err != nil {
		return fmt.Errorf("converting changeset to yaml: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(node); err != nil {
		return err
	}
	return encoder.Close()
}

// jsonToNode reads one JSON value from dec and builds the equivalent YAML
// node. Objects keep their key order.
func jsonToNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := jsonToNode(dec)
				if err != nil {
					return nil, err
				}
				node.Content = append(node.Content, scalar("!!str", key), value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return node, nil
		case '[':
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			flow := true
			for dec.More() {
				value, err := jsonToNode(dec)
				if err != nil {
					return nil, err
				}
				if value.Kind != yaml.ScalarNode {
					flow = false
				}
				node.Content = append(node.Content, value)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			// Byte strings read better inline.
			if flow && len(node.Content) > 0 {
				node.Style = yaml.FlowStyle
			}
			return node, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", v)
		}
	case string:
		return scalar("!!str", v), nil
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			return scalar("!!float", v.String()), nil
		}
		return scalar("!!int", v.String()), nil
	case bool:
		if v {
			return scalar("!!bool", "true"), nil
		}
		return scalar("!!bool", "false"), nil
	case nil:
		return scalar("!!null", "null"), nil
	default:
		return nil, fmt.Errorf("unexpected token %T", tok)
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

var _ Formatter = (*YAMLFormatter)(nil)
