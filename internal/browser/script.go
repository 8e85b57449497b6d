package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Script renders a call of the JavaScript function fn with JSON-encoded
// arguments, e.g. Script("(a, b) => a + b", 1, 2) is "((a, b) => a + b)(1,2)".
func Script(fn string, args ...any) string {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			// Arguments are plain strings, numbers and slices of them.
			panic(fmt.Sprintf("browser: unencodable script argument %T: %v", a, err))
		}
		encoded[i] = string(b)
	}
	return "(" + fn + ")(" + strings.Join(encoded, ",") + ")"
}

// asFunction wraps an expression so it can be passed to
// Runtime.callFunctionOn.
func asFunction(expr string) string {
	return "function() { return (" + expr + "); }"
}
