package jsonrpc2

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// parsePositionalArguments takes the params of a JSONRPC message, and asserts
// each positional argument into the reflected value of its type. It only
// supports positional arguments for params. Missing trailing arguments are
// passed as zero values.
func parsePositionalArguments(rawArgs json.RawMessage, types []reflect.Type) ([]reflect.Value, error) {
	var args []json.RawMessage
	if len(rawArgs) > 0 && !bytes.Equal(rawArgs, null) {
		if !isArray(rawArgs) {
			return nil, fmt.Errorf("non-array params: %s", abbrev(rawArgs, 32))
		}
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
	}
	if len(args) > len(types) {
		return nil, fmt.Errorf("too many arguments: expected at most %d, got %d", len(types), len(args))
	}

	values := make([]reflect.Value, 0, len(types))
	for i, argType := range types {
		value := reflect.New(argType)
		if i < len(args) {
			if err := json.Unmarshal(args[i], value.Interface()); err != nil {
				return nil, fmt.Errorf("invalid argument %d: %s", i, err)
			}
		}
		values = append(values, value.Elem())
	}
	return values, nil
}
