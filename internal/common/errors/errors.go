package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ErrorCode string

const (
	// Workflow taxonomy
	ErrCodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
	ErrCodeDuplicateActiveDraft   ErrorCode = "DUPLICATE_ACTIVE_DRAFT"
	ErrCodeDuplicateActiveOrder   ErrorCode = "DUPLICATE_ACTIVE_ORDER"
	ErrCodeDuplicateReport        ErrorCode = "DUPLICATE_INSPECTION_REPORT"
	ErrCodeAllocationExhausted    ErrorCode = "ALLOCATION_EXHAUSTED"
	ErrCodeSideEffectFailed       ErrorCode = "SIDE_EFFECT_FAILED"
	ErrCodePreconditionNotMet     ErrorCode = "PRECONDITION_NOT_MET"
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"

	// Lookups
	ErrCodeApplicationNotFound    ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeInspectionOrderMissing ErrorCode = "INSPECTION_ORDER_NOT_FOUND"

	// Input
	ErrCodePayloadValidationFailed ErrorCode = "PAYLOAD_VALIDATION_FAILED"

	// Infrastructure
	ErrCodeDatabaseOperationFailed   ErrorCode = "DATABASE_OPERATION_FAILED"
	ErrCodeNotificationSendFailed    ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodePaymentGatewayUnavailable ErrorCode = "PAYMENT_GATEWAY_UNAVAILABLE"
	ErrCodeBrokerUnavailable         ErrorCode = "WORKFLOW_BROKER_UNAVAILABLE"
	ErrCodeInternal                  ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the typed result every workflow component returns.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a metadata entry and returns the receiver.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// Constructors
// ==========================

func NewInvalidTransitionError(details string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Action not permitted", details, false, nil)
}

// DraftConflict is the resume-or-discard payload returned when an active
// application already exists for the same owner, kind and parent.
type DraftConflict struct {
	ExistingApplicationID string `json:"existingApplicationId"`
	Kind                  string `json:"kind"`
	Status                string `json:"status"`
}

func NewDuplicateActiveDraftError(conflict DraftConflict) *StandardError {
	e := newError(ErrCodeDuplicateActiveDraft, "An active application already exists",
		fmt.Sprintf("applicationId: %s", conflict.ExistingApplicationID), false, nil)
	e.Metadata = map[string]interface{}{
		"existingApplicationId": conflict.ExistingApplicationID,
		"kind":                  conflict.Kind,
		"status":                conflict.Status,
	}
	return e
}

// ConflictOf extracts the DraftConflict payload from a DUPLICATE_ACTIVE_DRAFT error.
func ConflictOf(err error) (DraftConflict, bool) {
	var se *StandardError
	if !stderrors.As(err, &se) || se.Code != ErrCodeDuplicateActiveDraft {
		return DraftConflict{}, false
	}
	str := func(k string) string {
		s, _ := se.Metadata[k].(string)
		return s
	}
	return DraftConflict{
		ExistingApplicationID: str("existingApplicationId"),
		Kind:                  str("kind"),
		Status:                str("status"),
	}, true
}

func NewDuplicateActiveOrderError(orderID string) *StandardError {
	return newError(ErrCodeDuplicateActiveOrder, "An inspection order is already active",
		fmt.Sprintf("orderId: %s", orderID), false, nil).WithMetadata("activeOrderId", orderID)
}

func NewDuplicateReportError(orderID string) *StandardError {
	return newError(ErrCodeDuplicateReport, "Inspection report already submitted",
		fmt.Sprintf("orderId: %s", orderID), false, nil)
}

func NewAllocationExhaustedError(scope string, attempts int, lastCandidate int64) *StandardError {
	return newError(ErrCodeAllocationExhausted, "Serial allocation retry budget exceeded",
		fmt.Sprintf("scope: %s, attempts: %d, lastCandidate: %d", scope, attempts, lastCandidate), false, nil)
}

func NewSideEffectFailedError(effect string, err error) *StandardError {
	return newError(ErrCodeSideEffectFailed, "Transition side effect failed",
		fmt.Sprintf("effect: %s, error: %v", effect, err), true, err)
}

func NewPreconditionNotMetError(details string) *StandardError {
	return newError(ErrCodePreconditionNotMet, "Precondition not met", details, false, nil)
}

func NewConcurrentModificationError(applicationID string) *StandardError {
	return newError(ErrCodeConcurrentModification, "Application was modified concurrently",
		fmt.Sprintf("applicationId: %s", applicationID), true, nil)
}

func NewApplicationNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application not found",
		fmt.Sprintf("applicationId: %s", applicationID), false, nil)
}

func NewInspectionOrderNotFoundError(orderID string) *StandardError {
	return newError(ErrCodeInspectionOrderMissing, "Inspection order not found",
		fmt.Sprintf("orderId: %s", orderID), false, nil)
}

func NewPayloadValidationError(details string) *StandardError {
	return newError(ErrCodePayloadValidationFailed, "Payload validation failed", details, false, nil)
}

func NewDatabaseOperationError(operation string, err error) *StandardError {
	return newError(ErrCodeDatabaseOperationFailed, "Database operation failed",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %v", channel, err), true, err)
}

func NewPaymentGatewayUnavailableError(err error) *StandardError {
	return newError(ErrCodePaymentGatewayUnavailable, "Payment gateway unavailable", err.Error(), true, err)
}

func NewBrokerUnavailableError(operation string, err error) *StandardError {
	return newError(ErrCodeBrokerUnavailable, "Workflow broker unavailable",
		fmt.Sprintf("operation: %s, error: %v", operation, err), true, err)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// Inspection helpers
// ==========================

// CodeOf returns the code of the first StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// AsStandard normalizes any error into a StandardError.
func AsStandard(err error) *StandardError {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se
	}
	return NewInternalError(err)
}

// HTTPStatus maps a code to the status an API layer should answer with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidTransition, ErrCodePayloadValidationFailed:
		return http.StatusBadRequest
	case ErrCodeDuplicateActiveDraft, ErrCodeDuplicateActiveOrder, ErrCodeDuplicateReport,
		ErrCodeConcurrentModification:
		return http.StatusConflict
	case ErrCodePreconditionNotMet:
		return http.StatusUnprocessableEntity
	case ErrCodeApplicationNotFound, ErrCodeInspectionOrderMissing:
		return http.StatusNotFound
	case ErrCodeNotificationSendFailed:
		return http.StatusBadGateway
	case ErrCodePaymentGatewayUnavailable, ErrCodeBrokerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ==========================
// BPMN mapping
// ==========================

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseOperationFailed,
		ErrCodeSideEffectFailed,
		ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeConcurrentModification,
		ErrCodePaymentGatewayUnavailable,
		ErrCodeBrokerUnavailable:
		return 2
	default:
		return 0 // business errors are thrown, not retried
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "PRECONDITION"):
		return "WORKFLOW"
	case strings.Contains(codeStr, "DUPLICATE") || strings.Contains(codeStr, "CONCURRENT"):
		return "CONFLICT"
	case strings.Contains(codeStr, "ALLOCATION"):
		return "ALLOCATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "SIDE_EFFECT"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "BROKER"):
		return "EXTERNAL_SERVICE"
	case strings.Contains(codeStr, "PAYMENT"):
		return "PAYMENT"
	case strings.Contains(codeStr, "NOT_FOUND"):
		return "LOOKUP"
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
