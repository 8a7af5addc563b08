package jsonrpc2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

var (
	typeOfError   = reflect.TypeOf((*error)(nil)).Elem()
	typeOfContext = reflect.TypeOf((*context.Context)(nil)).Elem()
)

var errUnexportedArg = errors.New("method has unexported arg types")

// Method is a receiver's method that can be called with JSON params. A
// leading context.Context argument is injected rather than decoded.
type Method struct {
	Name     string
	Receiver reflect.Value
	Func     reflect.Value
	ArgTypes []reflect.Type
	HasCtx   bool

	// ErrPos is the index of the error return value, or -1.
	ErrPos int
}

// inspect validates the signature of m. Supported return layouts are (),
// (error), (result) and (result, error).
func inspect(receiver reflect.Value, m reflect.Method) (Method, error) {
	def := Method{
		Name:     m.Name,
		Receiver: receiver,
		Func:     m.Func,
		ErrPos:   -1,
	}

	in := m.Type.NumIn()
	for i := 1; i < in; i++ {
		argType := m.Type.In(i)
		if i == 1 && argType == typeOfContext {
			def.HasCtx = true
			continue
		}
		if !isExportedOrBuiltin(argType) {
			return def, errUnexportedArg
		}
		def.ArgTypes = append(def.ArgTypes, argType)
	}

	out := m.Type.NumOut()
	switch {
	case out == 1 && m.Type.Out(0) == typeOfError:
		def.ErrPos = 0
	case out == 2 && m.Type.Out(1) == typeOfError:
		def.ErrPos = 1
	case out > 1:
		return def, fmt.Errorf("unsupported return values in method: %s", m.Name)
	}
	return def, nil
}

// Methods returns the callable methods of receiver by name. Methods with
// unexported arg types are skipped.
func Methods(receiver interface{}) (map[string]Method, error) {
	val := reflect.ValueOf(receiver)
	if name := reflect.Indirect(val).Type().Name(); !isExported(name) {
		return nil, fmt.Errorf("receiver must be exported: %s", name)
	}

	kind := val.Type()
	methods := make(map[string]Method, kind.NumMethod())
	for i := 0; i < kind.NumMethod(); i++ {
		m := kind.Method(i)
		if m.PkgPath != "" {
			continue
		}
		def, err := inspect(val, m)
		if err == errUnexportedArg {
			continue
		} else if err != nil {
			return nil, err
		}
		methods[m.Name] = def
	}
	return methods, nil
}

// MethodByName returns the named method of receiver.
func MethodByName(receiver interface{}, name string) (Method, error) {
	val := reflect.ValueOf(receiver)
	m, ok := val.Type().MethodByName(name)
	if !ok {
		return Method{}, fmt.Errorf("method not found: %s", name)
	}
	def, err := inspect(val, m)
	if err == errUnexportedArg {
		return Method{}, fmt.Errorf("%s: %s", err, name)
	}
	return def, err
}

// CallJSON decodes rawArgs as positional params and calls the method.
func (m *Method) CallJSON(ctx context.Context, rawArgs json.RawMessage) (interface{}, error) {
	args, err := parsePositionalArguments(rawArgs, m.ArgTypes)
	if err != nil {
		return nil, err
	}
	return m.Call(ctx, args)
}

// Call executes the method. The result is the first non-error return value,
// if any.
func (m *Method) Call(ctx context.Context, args []reflect.Value) (interface{}, error) {
	if len(args) != len(m.ArgTypes) {
		return nil, fmt.Errorf("invalid number of args: expected %d, got %d", len(m.ArgTypes), len(args))
	}

	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, m.Receiver)
	if m.HasCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	out := m.Func.Call(append(in, args...))

	if m.ErrPos >= 0 {
		if errVal := out[m.ErrPos]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
		out = out[:m.ErrPos]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}
