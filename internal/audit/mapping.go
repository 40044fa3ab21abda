// Package audit derives audit action/resource names from RPC method names.
package audit

import (
	"strings"
	"unicode"
)

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// ParseFullMethod returns action and resource for a gRPC full method
// (e.g. /account.v1.AccountService/ResendVerification -> resend_verification on account).
// Resource is derived from the service name with the Service suffix removed.
func ParseFullMethod(fullMethod string) ActionResource {
	// fullMethod format: /package.v1.ServiceName/MethodName
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: snake(method), Resource: "unknown"}
	}
	return ActionResource{Action: snake(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	// AccountService -> account, SessionService -> session
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return snake(s)
}

func snake(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
