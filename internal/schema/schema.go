// Package schema validates event payloads against per-action CUE schemas.
//
// A schema is any CUE value; the payload is unified with it and must be
// concrete and error-free afterwards. Actions without a schema accept any
// payload.
package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/rootstore/internal/ir"
)

// ValidationError reports a payload that does not satisfy its action schema.
type ValidationError struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload for %q: %s", e.Action, e.Message)
}

// Set holds compiled schemas keyed by action.
type Set struct {
	// CUE values are not safe for concurrent use.
	mu      sync.Mutex
	ctx     *cue.Context
	schemas map[string]cue.Value
}

// Compile builds a Set from CUE sources keyed by action name.
func Compile(sources map[string]string) (*Set, error) {
	ctx := cuecontext.New()
	s := &Set{ctx: ctx, schemas: make(map[string]cue.Value, len(sources))}

	for action, src := range sources {
		if strings.TrimSpace(action) == "" {
			return nil, fmt.Errorf("schema: empty action name")
		}
		v := ctx.CompileString(src, cue.Filename(action+".cue"))
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("schema %q: %w", action, err)
		}
		s.schemas[action] = v
	}
	return s, nil
}

// LoadDir compiles every <action>.cue file in dir.
func LoadDir(dir string) (*Set, error) {
	sources, err := ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return Compile(sources)
}

// ReadDir returns the source of every <action>.cue file in dir keyed by
// action.
func ReadDir(dir string) (map[string]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("schema: scan %s: %w", dir, err)
	}
	sources := make(map[string]string, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", f, err)
		}
		sources[strings.TrimSuffix(filepath.Base(f), ".cue")] = string(data)
	}
	return sources, nil
}

// Empty returns a Set with no schemas.
func Empty() *Set {
	return &Set{ctx: cuecontext.New(), schemas: map[string]cue.Value{}}
}

// Actions returns the actions that have a schema, sorted.
func (s *Set) Actions() []string {
	actions := make([]string, 0, len(s.schemas))
	for a := range s.schemas {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	return actions
}

// Validate checks payload against the schema for action. It returns nil
// when no schema is registered, and a *ValidationError on mismatch.
func (s *Set) Validate(action string, payload ir.IRObject) error {
	if s == nil {
		return nil
	}
	schema, ok := s.schemas[action]
	if !ok {
		return nil
	}
	if payload == nil {
		payload = ir.IRObject{}
	}

	data, err := ir.MarshalCanonical(payload)
	if err != nil {
		return &ValidationError{Action: action, Message: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value := s.ctx.CompileBytes(data)
	if err := value.Err(); err != nil {
		return &ValidationError{Action: action, Message: err.Error()}
	}
	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Action: action, Message: err.Error()}
	}
	return nil
}
