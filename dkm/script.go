package dkm

import (
	"fmt"

	"github.com/dop251/goja"

	"knowledgefabric/fabricerr"
)

// Program is a compiled goja script. Policies, rule filters, and schema
// mapping transforms compile their script body once at registration time
// (goja.Compile) and run it fresh per candidate against a new
// *goja.Runtime, since a Runtime is not safe for concurrent use and
// DKM evaluates many candidates concurrently across rules.
type Program struct {
	name string
	prog *goja.Program
}

// compile wraps body as a JS function of (props, agent) and compiles it
// once. body is expected to `return` a value: a boolean for predicates,
// an object for transforms.
func compile(name, body string) (*Program, error) {
	src := fmt.Sprintf("(function(props, agent) {\n%s\n})", body)
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fabricerr.Wrap(fabricerr.ValidationError, fmt.Sprintf("compiling script %q", name), err)
	}
	return &Program{name: name, prog: prog}, nil
}

func (p *Program) call(props, agent map[string]any) (goja.Value, error) {
	vm := goja.New()
	v, err := vm.RunProgram(p.prog)
	if err != nil {
		return nil, fabricerr.Wrap(fabricerr.ValidationError, fmt.Sprintf("running script %q", p.name), err)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fabricerr.New(fabricerr.ValidationError, fmt.Sprintf("script %q did not produce a function", p.name))
	}
	agentVal := interface{}(nil)
	if agent != nil {
		agentVal = agent
	}
	result, err := fn(goja.Undefined(), vm.ToValue(props), vm.ToValue(agentVal))
	if err != nil {
		return nil, fabricerr.Wrap(fabricerr.ValidationError, fmt.Sprintf("evaluating script %q", p.name), err)
	}
	return result, nil
}

// EvalPredicate runs the program as a boolean predicate.
func (p *Program) EvalPredicate(props, agent map[string]any) (bool, error) {
	result, err := p.call(props, agent)
	if err != nil {
		return false, err
	}
	return result.ToBoolean(), nil
}

// EvalTransform runs the program and expects it to return an object,
// exported as a property map.
func (p *Program) EvalTransform(props map[string]any) (map[string]any, error) {
	result, err := p.call(props, nil)
	if err != nil {
		return nil, err
	}
	exported := result.Export()
	out, ok := exported.(map[string]any)
	if !ok {
		return nil, fabricerr.New(fabricerr.ValidationError, fmt.Sprintf("script %q must return an object", p.name))
	}
	return out, nil
}

// applyFieldMap renames keys in props per fieldMap; unlisted keys pass
// through unchanged. The built-in "no script" case for SchemaMapping.
func applyFieldMap(props map[string]any, fieldMap map[string]string) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if renamed, ok := fieldMap[k]; ok {
			out[renamed] = v
			continue
		}
		out[k] = v
	}
	return out
}
