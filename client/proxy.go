package client

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// NewProxy populates every exported function-typed field of the struct
// pointed to by out with a dynamically constructed implementation that
// marshals its arguments, calls cli.Call against interfaceName/version,
// and unmarshals the result back into the field's declared return type.
//
// This is the concrete realization of spec.md §9's "dynamic reflective
// proxy construction" design note: Go has no way to synthesize a new
// named type satisfying an arbitrary interface at runtime, so the proxy
// target is a plain struct whose fields are named after RPC methods —
// reflect.MakeFunc builds each field's function value, and the compiler
// still checks call sites against the field's declared signature.
//
// A field's function type may optionally take a leading context.Context;
// its last return value must be error, and at most one other return value
// is allowed (the unmarshaled result).
func NewProxy(out any, interfaceName, version string, cli *Client) error {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("client: NewProxy requires a pointer to a struct of function fields, got %T", out)
	}
	structVal := v.Elem()
	structType := structVal.Type()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldVal := structVal.Field(i)
		if fieldVal.Kind() != reflect.Func || !fieldVal.CanSet() {
			continue
		}
		if err := validateProxyMethod(field.Type); err != nil {
			return fmt.Errorf("client: field %s: %w", field.Name, err)
		}

		methodName := field.Name
		fnType := field.Type
		fieldVal.Set(reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
			return invokeProxyMethod(cli, interfaceName, version, methodName, fnType, args)
		}))
	}
	return nil
}

func validateProxyMethod(fnType reflect.Type) error {
	numOut := fnType.NumOut()
	if numOut == 0 || numOut > 2 {
		return fmt.Errorf("must return (result, error) or (error), got %d return values", numOut)
	}
	if fnType.Out(numOut - 1) != errorType {
		return fmt.Errorf("last return value must be error")
	}
	return nil
}

// invokeProxyMethod marshals args (skipping a leading context.Context, if
// present) into RpcRequest parameters, performs the call, and shapes the
// response into fnType's declared return values.
func invokeProxyMethod(cli *Client, interfaceName, version, methodName string, fnType reflect.Type, args []reflect.Value) []reflect.Value {
	ctx := context.Background()
	start := 0
	if fnType.NumIn() > 0 && fnType.In(0) == ctxType {
		ctx = args[0].Interface().(context.Context)
		start = 1
	}

	paramTypes := make([]string, 0, len(args)-start)
	params := make([][]byte, 0, len(args)-start)
	for i := start; i < len(args); i++ {
		payload, err := json.Marshal(args[i].Interface())
		if err != nil {
			return proxyError(fnType, fmt.Errorf("marshal argument %d: %w", i, err))
		}
		paramTypes = append(paramTypes, fnType.In(i).String())
		params = append(params, payload)
	}

	numOut := fnType.NumOut()
	hasResult := numOut == 2

	var resultPtr reflect.Value
	var out any
	if hasResult {
		resultPtr = reflect.New(fnType.Out(0))
		out = resultPtr.Interface()
	}

	err := cli.Call(ctx, interfaceName, version, methodName, paramTypes, params, out)
	if err != nil {
		return proxyError(fnType, err)
	}

	if !hasResult {
		return []reflect.Value{reflect.Zero(errorType)}
	}
	return []reflect.Value{resultPtr.Elem(), reflect.Zero(errorType)}
}

func proxyError(fnType reflect.Type, err error) []reflect.Value {
	numOut := fnType.NumOut()
	results := make([]reflect.Value, numOut)
	for i := 0; i < numOut-1; i++ {
		results[i] = reflect.Zero(fnType.Out(i))
	}
	results[numOut-1] = reflect.ValueOf(err).Convert(errorType)
	return results
}
