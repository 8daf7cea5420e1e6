package approval

// Outcome is the normalized result taxonomy every kind-specific mutation is
// coerced into. Callers never see a raw internal error; the router converts
// anything unexpected into OutcomeError at its outermost boundary.
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeForbidden        Outcome = "FORBIDDEN"
	OutcomeNotFound         Outcome = "NOT_FOUND"
	OutcomeAlreadyDecided   Outcome = "ALREADY_DECIDED"
	OutcomeValidationFailed Outcome = "VALIDATION_FAILED"
	OutcomeError            Outcome = "ERROR"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string { return string(o) }

// Result is the uniform answer of the decision router: one outcome plus an
// optional human-readable message.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`
}

func success(msg string) Result          { return Result{Outcome: OutcomeSuccess, Message: msg} }
func forbidden(msg string) Result        { return Result{Outcome: OutcomeForbidden, Message: msg} }
func notFound(msg string) Result         { return Result{Outcome: OutcomeNotFound, Message: msg} }
func alreadyDecided(msg string) Result   { return Result{Outcome: OutcomeAlreadyDecided, Message: msg} }
func validationFailed(msg string) Result { return Result{Outcome: OutcomeValidationFailed, Message: msg} }
func internalError(msg string) Result    { return Result{Outcome: OutcomeError, Message: msg} }
