// Package errs defines gitmem's closed set of user-visible error kinds.
//
// Every core operation that can fail in a way a caller needs to branch on
// returns (or wraps) one of these. Kind is compared with errors.Is; the two
// structured variants (AmbiguousHashError, InvalidQueryError) carry the
// extra payload callers need to render an actionable message.
package errs

import "fmt"

// Kind is one of the fixed error categories a caller can switch on.
type Kind string

const (
	NotInitialized     Kind = "not_initialized"
	ConfigInvalid      Kind = "config_invalid"
	NotARepo           Kind = "not_a_repo"
	DBMissing          Kind = "db_missing"
	LockHeld           Kind = "lock_held"
	APIKeyMissing      Kind = "api_key_missing"
	AmbiguousHash      Kind = "ambiguous_hash"
	NotFound           Kind = "not_found"
	Validation         Kind = "validation"
	AIRequired         Kind = "ai_required"
	InvalidSearchQuery Kind = "invalid_search_query"
	ModelTransport     Kind = "model_transport"
)

var messages = map[Kind]string{
	NotInitialized:     "workspace is not initialized; run 'gitmem init' first",
	ConfigInvalid:      "workspace configuration is invalid",
	NotARepo:           "current directory is not inside a git repository",
	DBMissing:          "no index database found for this workspace",
	LockHeld:           "another gitmem process holds the workspace lock",
	APIKeyMissing:      "ANTHROPIC_API_KEY is not set",
	AmbiguousHash:      "commit hash prefix is ambiguous",
	NotFound:           "requested data was not found",
	Validation:         "value is not in its allowed set",
	AIRequired:         "this operation requires enrichment, but ai is disabled for this workspace",
	InvalidSearchQuery: "search query could not be parsed",
	ModelTransport:     "model API request failed",
}

// Error is the base error type all gitmem core errors wrap.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if msg, ok := messages[e.Kind]; ok {
		return msg
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.New(Kind, "")) style kind comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a plain kinded error with the default message for that kind.
func New(kind Kind) *Error { return &Error{Kind: kind} }

// Newf builds a kinded error with a custom message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error, preserving it for Unwrap.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf("%s: %v", messages[kind], err), Err: err}
}

// LockFileError is returned by Store.WithLock when the lock file already exists.
type LockFileError struct {
	Path string
}

func (e *LockFileError) Error() string {
	return fmt.Sprintf("lock file already present at %s; another process may be indexing this workspace", e.Path)
}

func (e *LockFileError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == LockHeld
}

// AmbiguousHashError carries the candidate hashes a prefix resolved to.
type AmbiguousHashError struct {
	Prefix     string
	Candidates []string
}

func (e *AmbiguousHashError) Error() string {
	return fmt.Sprintf("hash prefix %q matches %d commits: %v", e.Prefix, len(e.Candidates), e.Candidates)
}

func (e *AmbiguousHashError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == AmbiguousHash
}

// InvalidQueryError carries the original full-text search query string.
type InvalidQueryError struct {
	Query string
	Err   error
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid search query %q (hint: quote phrases containing punctuation): %v", e.Query, e.Err)
}

func (e *InvalidQueryError) Unwrap() error { return e.Err }

func (e *InvalidQueryError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == InvalidSearchQuery
}
