package apidocs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/keithlinneman/goals-api/internal/xerrors"
)

// Document is one parsed OpenAPI document. It is never mutated after Parse.
type Document struct {
	Title       string
	Version     string
	Description string
	OpenAPI     string

	// Source is the file the document was read from, "embedded" for the default.
	Source   string
	LoadedAt time.Time
	// Hash is the hex sha256 of the YAML source.
	Hash string
	// Operations lists every path operation in document order.
	Operations []Operation

	yamlBytes []byte
	jsonBytes []byte
}

// YAML returns the document as authored.
func (d *Document) YAML() []byte { return d.yamlBytes }

// JSON returns the document rendered as indented JSON.
func (d *Document) JSON() []byte { return d.jsonBytes }

// Operation is one method on one path of the document.
type Operation struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Tags        []string
	Deprecated  bool
}

type header struct {
	OpenAPI string `yaml:"openapi"`
	Info    struct {
		Title       string `yaml:"title"`
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
	} `yaml:"info"`
	// kept as a node so operations come out in document order
	Paths yaml.Node `yaml:"paths"`
}

var operationMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// operations walks paths -> path item -> method. Path item keys that are
// not methods (parameters, summary, servers) are skipped.
func operations(paths *yaml.Node, source string) ([]Operation, error) {
	if paths.Kind == 0 {
		return nil, nil
	}
	if paths.Kind != yaml.MappingNode {
		return nil, xerrors.Newf("apidocs: %s paths is not a mapping", source)
	}
	var out []Operation
	for i := 0; i+1 < len(paths.Content); i += 2 {
		path, item := paths.Content[i].Value, paths.Content[i+1]
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			method := strings.ToLower(item.Content[j].Value)
			if !operationMethods[method] {
				continue
			}
			var op struct {
				OperationID string   `yaml:"operationId"`
				Summary     string   `yaml:"summary"`
				Tags        []string `yaml:"tags"`
				Deprecated  bool     `yaml:"deprecated"`
			}
			if err := item.Content[j+1].Decode(&op); err != nil {
				return nil, xerrors.Wrapf(err, "apidocs: %s %s %s", source, strings.ToUpper(method), path)
			}
			out = append(out, Operation{
				Method:      strings.ToUpper(method),
				Path:        path,
				OperationID: op.OperationID,
				Summary:     op.Summary,
				Tags:        op.Tags,
				Deprecated:  op.Deprecated,
			})
		}
	}
	return out, nil
}

// Parse decodes an OpenAPI YAML document. The top level must carry an
// openapi version and info.title; everything else is passed through.
func Parse(data []byte, source string) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, xerrors.Newf("apidocs: %s is empty", source)
	}

	var h header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, xerrors.Wrapf(err, "apidocs: parse %s", source)
	}
	if h.OpenAPI == "" {
		return nil, xerrors.Newf("apidocs: %s has no openapi version", source)
	}
	if h.Info.Title == "" {
		return nil, xerrors.Newf("apidocs: %s has no info.title", source)
	}

	ops, err := operations(&h.Paths, source)
	if err != nil {
		return nil, err
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, xerrors.Wrapf(err, "apidocs: parse %s", source)
	}
	js, err := json.MarshalIndent(jsonCompatible(tree), "", "  ")
	if err != nil {
		return nil, xerrors.Wrapf(err, "apidocs: render %s as json", source)
	}

	return &Document{
		Title:       h.Info.Title,
		Version:     h.Info.Version,
		Description: h.Info.Description,
		OpenAPI:     h.OpenAPI,
		Source:      source,
		LoadedAt:    time.Now().UTC(),
		Hash:        sha256Hex(data),
		Operations:  ops,
		yamlBytes:   append([]byte(nil), data...),
		jsonBytes:   js,
	}, nil
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// jsonCompatible rewrites mappings with non-string keys (response codes
// like 200 decode as ints) into string-keyed maps encoding/json accepts.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = jsonCompatible(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = jsonCompatible(val)
		}
		return out
	default:
		return v
	}
}
