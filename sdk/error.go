package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	hopslog "github.com/hostops/hops/sdk/log"
)

// Existing hops errors.
var (
	ErrUnknownError           = Error{ID: 1, Status: http.StatusInternalServerError}
	ErrWrongRequest           = Error{ID: 2, Status: http.StatusBadRequest}
	ErrNotFound               = Error{ID: 3, Status: http.StatusNotFound}
	ErrInvalidData            = Error{ID: 4, Status: http.StatusBadRequest}
	ErrForbidden              = Error{ID: 5, Status: http.StatusForbidden}
	ErrConflict               = Error{ID: 6, Status: http.StatusConflict}
	ErrInvalidJobStatus       = Error{ID: 7, Status: http.StatusConflict}
	ErrJobNotApproved         = Error{ID: 8, Status: http.StatusForbidden}
	ErrJobAlreadyApproved     = Error{ID: 9, Status: http.StatusConflict}
	ErrPolicyDenied           = Error{ID: 10, Status: http.StatusForbidden}
	ErrTargetUnreachable      = Error{ID: 11, Status: http.StatusBadGateway}
	ErrTimeout                = Error{ID: 12, Status: http.StatusGatewayTimeout}
	ErrExternalTaskFailed     = Error{ID: 13, Status: http.StatusBadGateway}
	ErrPolicyRejectedByTarget = Error{ID: 14, Status: http.StatusConflict}
	ErrInvariantViolation     = Error{ID: 15, Status: http.StatusInternalServerError}
	ErrInvalidPolicy          = Error{ID: 16, Status: http.StatusBadRequest}
	ErrServiceUnavailable     = Error{ID: 17, Status: http.StatusServiceUnavailable}
	ErrLocked                 = Error{ID: 18, Status: http.StatusConflict}
	ErrNotImplemented         = Error{ID: 19, Status: http.StatusNotImplemented}
)

var errorsAmericanEnglish = map[int]string{
	ErrUnknownError.ID:           "internal server error",
	ErrWrongRequest.ID:           "wrong request",
	ErrNotFound.ID:               "resource not found",
	ErrInvalidData.ID:            "given data is invalid",
	ErrForbidden.ID:              "forbidden",
	ErrConflict.ID:               "resource was updated concurrently",
	ErrInvalidJobStatus.ID:       "operation not allowed in the current job status",
	ErrJobNotApproved.ID:         "job requires an approval before it can run",
	ErrJobAlreadyApproved.ID:     "job is already approved",
	ErrPolicyDenied.ID:           "action denied by job policy",
	ErrTargetUnreachable.ID:      "target is unreachable",
	ErrTimeout.ID:                "action timed out",
	ErrExternalTaskFailed.ID:     "external task failed",
	ErrPolicyRejectedByTarget.ID: "action rejected by target",
	ErrInvariantViolation.ID:     "job state is inconsistent",
	ErrInvalidPolicy.ID:          "job policy is invalid for this job type",
	ErrServiceUnavailable.ID:     "service unavailable",
	ErrLocked.ID:                 "resource is locked",
	ErrNotImplemented.ID:         "not implemented",
}

// errorsCodes are the stable identifiers written in job events.
var errorsCodes = map[int]string{
	ErrUnknownError.ID:           "unknown",
	ErrWrongRequest.ID:           "wrong_request",
	ErrNotFound.ID:               "not_found",
	ErrInvalidData.ID:            "invalid_data",
	ErrForbidden.ID:              "forbidden",
	ErrConflict.ID:               "conflict",
	ErrInvalidJobStatus.ID:       "invalid_job_status",
	ErrJobNotApproved.ID:         "job_not_approved",
	ErrJobAlreadyApproved.ID:     "job_already_approved",
	ErrPolicyDenied.ID:           "policy_denied",
	ErrTargetUnreachable.ID:      "target_unreachable",
	ErrTimeout.ID:                "timeout",
	ErrExternalTaskFailed.ID:     "external_task_failed",
	ErrPolicyRejectedByTarget.ID: "policy_rejected_by_target",
	ErrInvariantViolation.ID:     "invariant_violation",
	ErrInvalidPolicy.ID:          "invalid_policy",
	ErrServiceUnavailable.ID:     "service_unavailable",
	ErrLocked.ID:                 "locked",
	ErrNotImplemented.ID:         "not_implemented",
}

// Error type.
type Error struct {
	ID         int    `json:"id"`
	Status     int    `json:"-"`
	Message    string `json:"message"`
	From       string `json:"from,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`
}

func (e Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = errorsAmericanEnglish[e.ID]
	}
	if e.From != "" {
		return fmt.Sprintf("%s (from: %s)", msg, e.From)
	}
	return msg
}

// Code returns the stable identifier of the error.
func (e Error) Code() string {
	if c, ok := errorsCodes[e.ID]; ok {
		return c
	}
	return errorsCodes[ErrUnknownError.ID]
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

type errorWithStack struct {
	root      error
	httpError Error
}

func (w errorWithStack) Error() string {
	var cause string
	root := w.root.Error()
	if root != "" && root != w.httpError.Error() {
		cause = fmt.Sprintf(" (caused by: %s)", root)
	}
	return fmt.Sprintf("%s%s", w.httpError.Error(), cause)
}

func (w errorWithStack) Unwrap() error { return w.root }

func (w errorWithStack) StackTrace() errors.StackTrace {
	if s, ok := w.root.(stackTracer); ok {
		return s.StackTrace()
	}
	return nil
}

func (w errorWithStack) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "%s: %+v", w.httpError.Error(), w.root)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, w.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", w.Error())
	}
}

func withRootStack(err error) error {
	if _, ok := err.(stackTracer); ok {
		return err
	}
	return errors.WithStack(err)
}

// NewError returns an error that carries the given http error and keeps err as its cause.
func NewError(httpErr Error, err error) error {
	if err == nil {
		return WithStack(httpErr)
	}
	if e, ok := err.(errorWithStack); ok {
		return errorWithStack{root: e.root, httpError: httpErr}
	}
	if e, ok := err.(Error); ok && httpErr.From == "" {
		httpErr.From = e.Error()
	}
	return errorWithStack{root: withRootStack(err), httpError: httpErr}
}

// NewErrorFrom returns the given http error with a detailed origin message.
func NewErrorFrom(httpErr Error, from string, args ...interface{}) error {
	if len(args) > 0 {
		from = fmt.Sprintf(from, args...)
	}
	httpErr.From = from
	return errorWithStack{root: errors.New(from), httpError: httpErr}
}

// WithStack adds a stack trace to the error if it does not already have one.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case errorWithStack:
		return e
	case Error:
		return errorWithStack{root: errors.WithStack(e), httpError: e}
	}
	return withRootStack(err)
}

// WrapError adds a message to the error and a stack trace if missing.
func WrapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch e := err.(type) {
	case errorWithStack:
		e.root = errors.WithMessage(e.root, msg)
		return e
	case Error:
		return errorWithStack{root: errors.Wrap(e, msg), httpError: e}
	}
	if _, ok := err.(stackTracer); ok {
		return errors.WithMessage(err, msg)
	}
	return errors.Wrap(err, msg)
}

// ExtractHTTPError returns the http error carried by the given error, or ErrUnknownError.
func ExtractHTTPError(source error) Error {
	if source == nil {
		return Error{}
	}
	var httpErr Error

	var ews errorWithStack
	if errors.As(source, &ews) {
		httpErr = ews.httpError
	} else if !errors.As(source, &httpErr) {
		httpErr = ErrUnknownError
	}

	if httpErr.Message == "" {
		httpErr.Message = errorsAmericanEnglish[httpErr.ID]
	}
	if httpErr.Status == 0 {
		httpErr.Status = http.StatusInternalServerError
	}
	return httpErr
}

// Cause returns the root cause of the error.
func Cause(err error) error {
	if e, ok := err.(errorWithStack); ok {
		return errors.Cause(e.root)
	}
	return errors.Cause(err)
}

// ErrorIs returns true if error match the target http error.
func ErrorIs(err error, target Error) bool {
	if err == nil {
		return false
	}
	return ExtractHTTPError(err).ID == target.ID
}

// ErrorIsUnknown returns true if the error does not carry any known http error.
func ErrorIsUnknown(err error) bool {
	return ErrorIs(err, ErrUnknownError)
}

// ErrorCode returns the stable identifier of the http error carried by err.
func ErrorCode(err error) string {
	return ExtractHTTPError(err).Code()
}

// DecodeError returns an Error from a json payload sent by the API.
func DecodeError(data []byte, status int) error {
	var e Error
	if err := json.Unmarshal(data, &e); err != nil {
		return nil
	}
	if e.ID == 0 && e.Message == "" {
		return nil
	}
	e.Status = status
	return e
}

// ContextWithStacktrace adds the error stack trace to the log context.
func ContextWithStacktrace(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, hopslog.Stacktrace, fmt.Sprintf("%+v", err))
}
