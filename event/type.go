package event

import (
	"context"
	"reflect"
	"strings"
)

// Named is implemented by events that choose their serialized type name,
// which keeps stored names stable when Go types move or get renamed.
type Named interface {
	EventName() string
}

// resolveType of the given value (mainly an event),
func resolveType(v interface{}) (reflect.Type, string) {
	rType := reflect.TypeOf(v)
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return rType, rType.String()
}

// TypeOf returns the type name of a value or its pointer.
// The name is {package name}.{type name} unless the value implements Named.
func TypeOf(v interface{}) (vtype string) {
	if v == nil {
		return ""
	}
	if n, ok := v.(Named); ok {
		return n.EventName()
	}
	_, vtype = resolveType(v)
	return
}

// TypeOfWithNamspace returns the type of the value using the given namepspace.
// by default the type name / value is {package name}.{value type name}.
// The return is changed to {namespace}.{value type name} id namespace is not empty
func TypeOfWithNamspace(namespace string, v interface{}) string {
	t := TypeOf(v)
	if namespace != "" {
		splits := strings.Split(t, ".")
		return namespace + "." + splits[len(splits)-1]
	}
	return t
}

// TypeOfWithContext uses TypeOfWithNamspace under the hood and looks for the namespace value from the context.
func TypeOfWithContext(ctx context.Context, v interface{}) string {
	if namespace, ok := ctx.Value(ContextNamespaceKey).(string); ok {
		return TypeOfWithNamspace(namespace, v)
	}
	return TypeOf(v)
}
