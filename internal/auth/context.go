package auth

import "context"

type ctxKey int

const principalKey ctxKey = iota

// ContextWithPrincipal stores the operator resolved for the current request.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the operator stored by ContextWithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.Operator.ID != ""
}

// OperatorID is the acting operator's id, or "" outside an operator request.
func OperatorID(ctx context.Context) string {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return ""
	}
	return p.Operator.ID
}
