package sanitize

import "fmt"

// SafeRepr returns a human-readable description of v, tolerating values
// whose own String or Error methods panic.
func SafeRepr(v any) (repr string) {
	defer func() {
		if r := recover(); r != nil {
			repr = fmt.Sprintf("repr error: %v", r)
		}
	}()
	switch x := v.(type) {
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprintf("%#v", v)
	}
}
