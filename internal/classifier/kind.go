package classifier

import "strings"

// ErrorKind is a coarse label for failure breakdown charts. It is
// independent of the root-cause Category.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "Timeout"
	KindNull        ErrorKind = "Null/None Error"
	KindConnection  ErrorKind = "Connection Error"
	KindAssertion   ErrorKind = "Assertion Failure"
	KindNotFound    ErrorKind = "Not Found"
	KindServerError ErrorKind = "Server Error"
	KindOther       ErrorKind = "Other"
)

var kindTriggers = []struct {
	kind     ErrorKind
	triggers []string
}{
	{KindTimeout, []string{"timeout"}},
	{KindNull, []string{"null", "none"}},
	{KindConnection, []string{"connection", "network"}},
	{KindAssertion, []string{"assertion", "expected"}},
	{KindNotFound, []string{"not found", "404"}},
	{KindServerError, []string{"500", "internal server"}},
}

// KindOf labels an error message; the first matching kind wins.
func KindOf(message string) ErrorKind {
	lower := strings.ToLower(message)
	for _, k := range kindTriggers {
		for _, t := range k.triggers {
			if strings.Contains(lower, t) {
				return k.kind
			}
		}
	}
	return KindOther
}
