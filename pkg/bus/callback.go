package bus

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CallbackMethod returns the method name a reply or publication arrives on:
// publishX and getX map to onX, anything else to on + capitalized name.
func CallbackMethod(method string) string {
	switch {
	case strings.HasPrefix(method, "publish"):
		return "on" + capitalize(strings.TrimPrefix(method, "publish"))
	case strings.HasPrefix(method, "get"):
		return "on" + capitalize(strings.TrimPrefix(method, "get"))
	}
	return "on" + capitalize(method)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// DecodeArg decodes the i-th argument of msg into v. Arguments arrive as
// generic values (maps, slices, numbers) or raw JSON and are normalized
// through JSON.
func DecodeArg(msg Message, i int, v any) error {
	arg, ok := msg.Arg(i)
	if !ok {
		return fmt.Errorf("%s.%s arg %d: %w", msg.Name, msg.Method, i, ErrMissingArg)
	}
	if raw, ok := arg.(json.RawMessage); ok {
		return json.Unmarshal(raw, v)
	}
	data, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("%s.%s arg %d: %w", msg.Name, msg.Method, i, err)
	}
	return json.Unmarshal(data, v)
}
