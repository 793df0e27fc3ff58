package domain

// ResultKind discriminates the outcome of an auth action.
type ResultKind int

const (
	KindOK ResultKind = iota
	KindValidationError
	KindRateLimited
	KindNotAuthenticated
	KindForbidden
	KindNotFound
	KindCodeExpired
	KindCodeIncorrect
)

func (k ResultKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindValidationError:
		return "validation_error"
	case KindRateLimited:
		return "rate_limited"
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindCodeExpired:
		return "code_expired"
	case KindCodeIncorrect:
		return "code_incorrect"
	}
	return "unknown"
}

const (
	MsgTooManyRequests  = "Too many requests"
	MsgNotAuthenticated = "Not authenticated"
	MsgForbidden        = "Forbidden"
	MsgEnterCode        = "Enter your code"
	MsgIncorrectCode    = "Incorrect code."
	MsgInvalidCode      = "Invalid code"
	MsgInvalidPassword  = "Invalid password"
	MsgAccountNotFound  = "Account does not exist"
)

// Result is the value returned for every expected outcome of an auth action.
// Infrastructure faults are reported as Go errors instead.
type Result struct {
	Kind     ResultKind        `json:"-"`
	Message  string            `json:"message,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
}

func (r Result) OK() bool { return r.Kind == KindOK }

func Success(msg, redirect string) Result {
	return Result{Kind: KindOK, Message: msg, Redirect: redirect}
}

func Fail(kind ResultKind, msg string) Result {
	return Result{Kind: kind, Message: msg}
}

func Invalid(fields map[string]string) Result {
	return Result{Kind: KindValidationError, Message: "Invalid or missing fields", Fields: fields}
}

func InvalidField(field, msg string) Result {
	return Result{Kind: KindValidationError, Message: msg, Fields: map[string]string{field: msg}}
}

func RateLimited() Result {
	return Result{Kind: KindRateLimited, Message: MsgTooManyRequests}
}

func NotAuthenticated() Result {
	return Result{Kind: KindNotAuthenticated, Message: MsgNotAuthenticated}
}

func Forbidden() Result {
	return Result{Kind: KindForbidden, Message: MsgForbidden}
}
