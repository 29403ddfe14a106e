package helpers

import (
	"reflect"
	"runtime"
	"strings"
)

// GetTaskFunctionName returns the name under which an orchestrator or activity is registered.
// f is either the name itself or the function, in which case the unqualified function name is used.
func GetTaskFunctionName(f any) string {
	switch v := f.(type) {
	case nil:
		return ""
	case string:
		return v
	case interface{ String() string }:
		return v.String()
	}

	rv := reflect.ValueOf(f)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return ""
	}
	// this gets the full module path (github.com/org/module/package.function)
	name := runtime.FuncForPC(rv.Pointer()).Name()
	if startIndex := strings.LastIndexByte(name, '.'); startIndex > 0 {
		name = name[startIndex+1:]
	}
	return name
}
