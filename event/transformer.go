package event

import (
	"context"
	"fmt"
	"reflect"
)

// copyPayload copies the message payload to preserve the original value.
// It returns a pointer to the copy and whether the original payload was a pointer.
// It fails if can't get the pointer address from the value copy.
func copyPayload(msg DomainMessage) (interface{}, bool, error) {
	if msg.Payload == nil {
		return nil, false, nil
	}
	var (
		origin, copy, rv reflect.Value
		eType            reflect.Type
		isPtr            bool
	)
	rv = reflect.ValueOf(msg.Payload)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false, nil
		}
		isPtr = true
		origin = rv.Elem()
	} else {
		origin = rv
	}
	eType = origin.Type()
	if eType.Kind() != reflect.Struct {
		return nil, false, nil
	}

	copy = reflect.New(eType).Elem()
	for i := 0; i < origin.NumField(); i++ {
		if !copy.Field(i).CanSet() {
			return nil, false, fmt.Errorf("can't copy event field %s.%s", eType, eType.Field(i).Name)
		}
		copy.Field(i).Set(origin.Field(i))
	}
	if !copy.CanAddr() {
		return nil, false, fmt.Errorf("can't obtain addr of the copy(s) %v", copy.Type())
	}
	return copy.Addr().Interface(), isPtr, nil
}

// Transform replaces the payload of the given messages with the result of fn.
// It copies payloads first and performs the transformation on the copies, so that
// all messages keep their original payload if fn fails.
// Payloads that are not structs (or pointers to structs) are left untouched.
func Transform(ctx context.Context, msgs []DomainMessage, fn func(ctx context.Context, copyPtrs ...interface{}) error) error {
	type entry struct {
		ptr   interface{}
		isPtr bool
	}
	index := make(map[int]entry)
	copyPtrs := []interface{}{}
	for i, msg := range msgs {
		ptr, isPtr, err := copyPayload(msg)
		if err != nil {
			return err
		}
		if ptr == nil {
			continue
		}
		index[i] = entry{ptr: ptr, isPtr: isPtr}
		copyPtrs = append(copyPtrs, ptr)
	}
	if len(copyPtrs) == 0 {
		return nil
	}

	// fn may not be atomic. Hence copy payloads first and set them back after mutation
	if err := fn(ctx, copyPtrs...); err != nil {
		return err
	}

	for idx, e := range index {
		if e.isPtr {
			msgs[idx].Payload = e.ptr
		} else {
			msgs[idx].Payload = reflect.ValueOf(e.ptr).Elem().Interface()
		}
	}
	return nil
}
