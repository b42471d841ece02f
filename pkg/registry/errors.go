package registry

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the failure class of a registry operation.
// Codes are stable strings so they can cross process boundaries unchanged.
type ErrorCode string

const (
	// ErrCodeNotFound indicates that a name was never registered.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeModuleNotLoaded indicates that a name is registered but its
	// backing handler code is currently unavailable.
	ErrCodeModuleNotLoaded ErrorCode = "module_not_loaded"

	// ErrCodeUnstable indicates that an entry's failure count reached the
	// circuit-breaker threshold. Only ResolveStable returns it.
	ErrCodeUnstable ErrorCode = "unstable"

	// ErrCodeAlreadyRegistered indicates a registration conflict with an
	// existing entry while overwrite is disabled.
	ErrCodeAlreadyRegistered ErrorCode = "already_registered"

	// ErrCodeCoreLocked indicates a write targeting a core entry after the
	// sovereignty lock.
	ErrCodeCoreLocked ErrorCode = "core_locked"

	// ErrCodeNamespaceRequired indicates a post-lock registration whose name
	// lacks a namespace separator.
	ErrCodeNamespaceRequired ErrorCode = "plugin_namespace_required"

	// ErrCodeMissingBehaviour indicates a handler that does not implement the
	// capability interface required by the registry.
	ErrCodeMissingBehaviour ErrorCode = "missing_behaviour"

	// ErrCodeNodeNotFound indicates a target node absent from the peer group.
	ErrCodeNodeNotFound ErrorCode = "node_not_found"

	// ErrCodeRemoteUnavailable indicates that no reachable peer could answer
	// a remote resolution.
	ErrCodeRemoteUnavailable ErrorCode = "remote_unavailable"

	// ErrCodeRemoteCallFailed indicates a remote invocation that failed in
	// transport or on the remote side.
	ErrCodeRemoteCallFailed ErrorCode = "remote_call_failed"

	// ErrCodeCallTimeout indicates that the registry actor did not reply
	// within the configured call timeout.
	ErrCodeCallTimeout ErrorCode = "call_timeout"
)

// Error is the typed result returned for every registry failure. Callers
// misusing the registry get an explicit error, never a panic.
type Error struct {
	// Code is the failure class.
	Code ErrorCode `json:"code"`

	// Name is the entry name involved, if any.
	Name string `json:"name,omitempty"`

	// Node is the remote node involved, if any.
	Node string `json:"node,omitempty"`

	// Behaviour is the missing capability interface, for missing_behaviour.
	Behaviour string `json:"behaviour,omitempty"`

	// Reason carries detail for remote_call_failed and remote_unavailable.
	Reason string `json:"reason,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Name != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Name)
	}
	if e.Node != "" {
		msg = fmt.Sprintf("%s (node=%s)", msg, e.Node)
	}
	if e.Behaviour != "" {
		msg = fmt.Sprintf("%s (behaviour=%s)", msg, e.Behaviour)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code so callers can compare against sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewNotFoundError reports a name that was never registered.
func NewNotFoundError(name string) *Error {
	return &Error{Code: ErrCodeNotFound, Name: name}
}

// NewModuleNotLoadedError reports an entry whose backing code is unavailable.
func NewModuleNotLoadedError(name string) *Error {
	return &Error{Code: ErrCodeModuleNotLoaded, Name: name}
}

// NewUnstableError reports an entry past the circuit-breaker threshold.
func NewUnstableError(name string) *Error {
	return &Error{Code: ErrCodeUnstable, Name: name}
}

// NewAlreadyRegisteredError reports a no-overwrite registration conflict.
func NewAlreadyRegisteredError(name string) *Error {
	return &Error{Code: ErrCodeAlreadyRegistered, Name: name}
}

// NewCoreLockedError reports a write against a locked core entry.
func NewCoreLockedError(name string) *Error {
	return &Error{Code: ErrCodeCoreLocked, Name: name}
}

// NewNamespaceRequiredError reports a post-lock registration with a flat name.
func NewNamespaceRequiredError(name string) *Error {
	return &Error{Code: ErrCodeNamespaceRequired, Name: name}
}

// NewMissingBehaviourError reports a handler failing the capability check.
func NewMissingBehaviourError(name, behaviour string) *Error {
	return &Error{Code: ErrCodeMissingBehaviour, Name: name, Behaviour: behaviour}
}

// NewNodeNotFoundError reports a node absent from the peer group.
func NewNodeNotFoundError(node string) *Error {
	return &Error{Code: ErrCodeNodeNotFound, Node: node}
}

// NewRemoteUnavailableError reports that no peer could answer a resolution.
func NewRemoteUnavailableError(name, reason string, err error) *Error {
	return &Error{Code: ErrCodeRemoteUnavailable, Name: name, Reason: reason, Err: err}
}

// NewRemoteCallFailedError reports a failed remote invocation.
func NewRemoteCallFailedError(name, node, reason string, err error) *Error {
	return &Error{Code: ErrCodeRemoteCallFailed, Name: name, Node: node, Reason: reason, Err: err}
}

// NewCallTimeoutError reports an unresponsive registry actor.
func NewCallTimeoutError(op string) *Error {
	return &Error{Code: ErrCodeCallTimeout, Reason: op}
}

// CodeOf extracts the registry error code from an error chain, or "" if the
// error did not originate here.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err is a not_found registry error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsUnstable reports whether err is an unstable (circuit open) error.
func IsUnstable(err error) bool {
	return CodeOf(err) == ErrCodeUnstable
}

// IsCoreLocked reports whether err is a core_locked sovereignty error.
func IsCoreLocked(err error) bool {
	return CodeOf(err) == ErrCodeCoreLocked
}
