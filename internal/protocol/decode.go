package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeCreatePlayer:     "create_player.schema.json",
	TypePurchaseBuilding: "purchase_building.schema.json",
	TypeDeleteBuilding:   "delete_building.schema.json",
	TypePurchaseProphet:  "purchase_prophet.schema.json",
	TypeOverwriteTasks:   "overwrite_tasks.schema.json",
	TypeCreateAttack:     "create_attack.schema.json",
	TypeStoryTransition:  "story_transition.schema.json",
	TypeSubmitStatistics: "submit_statistics.schema.json",
}

const requestSchemaFile = "request.schema.json"

const schemaBaseURL = "https://paddlers.io/schemas/"

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func schemas() (map[string]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		names := []string{requestSchemaFile}
		for _, f := range schemaFiles {
			names = append(names, f)
		}
		for _, name := range names {
			raw, err := schemaFS.ReadFile(path.Join("schemas", name))
			if err != nil {
				compileErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(raw)); err != nil {
				compileErr = fmt.Errorf("%s: %w", name, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(names))
		for _, name := range names {
			s, err := c.Compile(schemaBaseURL + name)
			if err != nil {
				compileErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			out[name] = s
		}
		compiled = out
	})
	return compiled, compileErr
}

// CheckSchemas compiles every embedded schema; servers call it at start.
func CheckSchemas() error {
	_, err := schemas()
	return err
}

// DecodeError is a request the schema or JSON decoder rejected.
type DecodeError struct {
	Code    string
	Message string
}

func (e *DecodeError) Error() string { return e.Message }

func badRequest(format string, args ...any) error {
	return &DecodeError{Code: ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

func validate(schemaFile string, raw []byte) error {
	all, err := schemas()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return badRequest("invalid json: %v", err)
	}
	if err := all[schemaFile].Validate(doc); err != nil {
		return badRequest("%s", schemaMessage(err))
	}
	return nil
}

func schemaMessage(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return strings.TrimSpace(loc + ": " + leaf.Message)
	}
	return err.Error()
}

// Decode validates payload against the schema of typ and decodes it.
func Decode(typ string, payload []byte) (Command, error) {
	file, ok := schemaFiles[typ]
	if !ok {
		return nil, badRequest("unknown command type %q", typ)
	}
	if err := validate(file, payload); err != nil {
		return nil, err
	}
	cmd, err := newCommand(typ)
	if err != nil {
		return nil, badRequest("%v", err)
	}
	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, badRequest("decode %s: %v", typ, err)
	}
	return deref(cmd), nil
}

// Request is one websocket frame.
type Request struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Response answers a Request.
type Response struct {
	Type      string  `json:"type"`
	RequestID string  `json:"request_id,omitempty"`
	OK        bool    `json:"ok"`
	Code      string  `json:"code,omitempty"`
	Message   string  `json:"message,omitempty"`
	Result    *Result `json:"result,omitempty"`
}

// DecodeRequest validates a whole websocket frame and its payload.
func DecodeRequest(raw []byte) (Request, Command, error) {
	if err := validate(requestSchemaFile, raw); err != nil {
		return Request{}, nil, err
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, nil, badRequest("decode request: %v", err)
	}
	cmd, err := Decode(req.Type, req.Payload)
	return req, cmd, err
}
