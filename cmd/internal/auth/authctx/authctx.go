// Package authctx carries the authenticated subject through request contexts.
//
// Set by: the bearer-token middleware (auth/api.RequireAuth).
// Read by: every protected handler.
package authctx

import "context"

type key string

const subjectKey key = "auth_subject"

// WithSubject returns a copy of ctx carrying the verified token subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFrom returns the subject set by WithSubject.
// ok is false when none was set or it is empty.
func SubjectFrom(ctx context.Context) (subject string, ok bool) {
	if ctx == nil {
		return "", false
	}
	subject, ok = ctx.Value(subjectKey).(string)
	if !ok || subject == "" {
		return "", false
	}
	return subject, true
}
