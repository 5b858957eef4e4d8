package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectInbound     = "mrl.in.>"
	SubjectOutbound    = "mrl.out"
	SubjectChangeEvent = "mirror.changed"
	SubjectQuery       = "mirror.query"
)

// subjectToken makes a service or method name safe to use as one subject token.
func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}

// BuildOutboundSubject builds the subject a message for target.method is sent on.
func BuildOutboundSubject(prefix, target, method string) string {
	if prefix == "" {
		prefix = SubjectOutbound
	}
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(target), subjectToken(method))
}

// BuildInboundSubject builds a concrete subject under the inbound wildcard,
// as the runtime publishes them.
func BuildInboundSubject(wildcard, target, method string) string {
	if wildcard == "" {
		wildcard = SubjectInbound
	}
	prefix := strings.TrimSuffix(strings.TrimSuffix(wildcard, ">"), ".")
	return fmt.Sprintf("%s.%s.%s", prefix, subjectToken(target), subjectToken(method))
}

// BuildChangeSubject builds a granular change event subject.
func BuildChangeSubject(prefix, kind string) string {
	if prefix == "" {
		prefix = SubjectChangeEvent
	}
	return fmt.Sprintf("%s.%s", prefix, subjectToken(kind))
}
