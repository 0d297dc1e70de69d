package server

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mayingwei/MyRPC/errs"
	"github.com/mayingwei/MyRPC/message"
)

// methodInvoker holds the reflection metadata needed to invoke a single
// handler method without a per-call reflective lookup. It is built once,
// at Register time, and reused for every request that targets this method.
type methodInvoker struct {
	method     reflect.Value  // bound method value (receiver already applied)
	paramTypes []reflect.Type // declared Go type of each non-receiver argument
	hasResult  bool           // true if the method returns (result, error) rather than just error
}

// invoke decodes each wire parameter into its declared argument type, calls
// the method, and returns the JSON-encoded result (nil if the method has no
// result value) plus any error the handler returned.
func (m *methodInvoker) invoke(parameters [][]byte) ([]byte, error) {
	if len(parameters) != len(m.paramTypes) {
		return nil, fmt.Errorf("expected %d parameters, got %d", len(m.paramTypes), len(parameters))
	}

	args := make([]reflect.Value, len(m.paramTypes))
	for i, t := range m.paramTypes {
		argv := reflect.New(t)
		if err := json.Unmarshal(parameters[i], argv.Interface()); err != nil {
			return nil, fmt.Errorf("decode parameter %d: %w", i, err)
		}
		args[i] = argv.Elem()
	}

	results := m.method.Call(args)

	var errVal reflect.Value
	var resultVal reflect.Value
	if m.hasResult {
		resultVal = results[0]
		errVal = results[1]
	} else {
		errVal = results[0]
	}

	if !errVal.IsNil() {
		return nil, errVal.Interface().(error)
	}
	if !m.hasResult {
		return nil, nil
	}
	return json.Marshal(resultVal.Interface())
}

// serviceEntry wraps a registered handler object and its precomputed
// method invokers, keyed by method name.
type serviceEntry struct {
	handler any
	methods map[string]*methodInvoker
}

// errorType is used to recognize a method's trailing `error` return value.
var errorType = reflect.TypeOf((*error)(nil)).Elem()

// HandlerRegistry maps a ServiceKey to its registered handler. It is built
// once at startup via explicit Register calls and is read-only thereafter,
// so dispatch can read it concurrently without locking.
type HandlerRegistry struct {
	services map[string]*serviceEntry
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{services: make(map[string]*serviceEntry)}
}

// Register scans handler's exported methods and stores it under the
// ServiceKey derived from interfaceName and version. Registering the same
// ServiceKey twice is a startup error.
//
// A method qualifies for dispatch if its signature is either:
//
//	func (h *Handler) Method(args...) error
//	func (h *Handler) Method(args...) (Result, error)
//
// Methods that don't match either shape are skipped — they're ordinary
// helper methods on the handler, not RPC-callable operations.
func (r *HandlerRegistry) Register(interfaceName, version string, handler any) error {
	key := message.ServiceKey(interfaceName, version)
	if _, exists := r.services[key]; exists {
		return errs.New(errs.KindProtocol, "service already registered for key %q", key)
	}

	entry := &serviceEntry{handler: handler, methods: make(map[string]*methodInvoker)}
	typ := reflect.TypeOf(handler)
	val := reflect.ValueOf(handler)

	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		mt := m.Type // includes receiver as In(0)

		numOut := mt.NumOut()
		if numOut != 1 && numOut != 2 {
			continue
		}
		if mt.Out(numOut-1) != errorType {
			continue
		}

		paramTypes := make([]reflect.Type, mt.NumIn()-1)
		for j := 1; j < mt.NumIn(); j++ {
			paramTypes[j-1] = mt.In(j)
		}

		entry.methods[m.Name] = &methodInvoker{
			method:     val.Method(i),
			paramTypes: paramTypes,
			hasResult:  numOut == 2,
		}
	}

	r.services[key] = entry
	return nil
}

// lookup resolves a ServiceKey/method pair to its invoker.
func (r *HandlerRegistry) lookup(interfaceName, version, methodName string) (*methodInvoker, error) {
	key := message.ServiceKey(interfaceName, version)
	entry, ok := r.services[key]
	if !ok {
		return nil, errs.NoSuchService(key)
	}
	inv, ok := entry.methods[methodName]
	if !ok {
		return nil, errs.NoSuchService(key + "#" + strings.TrimSpace(methodName))
	}
	return inv, nil
}
