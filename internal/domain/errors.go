package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure surfaced to a tool caller.
type ErrorKind int

const (
	Unexpected ErrorKind = iota
	ConfigurationMissing
	InvalidScope
	InstanceNotFound
	InstanceMisconfigured
	TransportError
	UpstreamHTTPError
	UpstreamMalformedResponse
	AuthenticationExpired
)

var kindNames = map[ErrorKind]string{
	Unexpected:                "Unexpected",
	ConfigurationMissing:      "ConfigurationMissing",
	InvalidScope:              "InvalidScope",
	InstanceNotFound:          "InstanceNotFound",
	InstanceMisconfigured:     "InstanceMisconfigured",
	TransportError:            "TransportError",
	UpstreamHTTPError:         "UpstreamHTTPError",
	UpstreamMalformedResponse: "UpstreamMalformedResponse",
	AuthenticationExpired:     "AuthenticationExpired",
}

// Wire-level codes, kept compatible with the error dictionaries the
// upstream tooling has always returned.
var kindCodes = map[ErrorKind]string{
	Unexpected:                "UnexpectedError",
	ConfigurationMissing:      "ConfigurationMissing",
	InvalidScope:              "InvalidScope",
	InstanceNotFound:          "InstanceNotFound",
	InstanceMisconfigured:     "InstanceMisconfigured",
	TransportError:            "RequestError",
	UpstreamHTTPError:         "HTTPStatusError",
	UpstreamMalformedResponse: "JSONDecodeError",
	AuthenticationExpired:     "AuthenticationError",
}

func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Code is the stable token embedded in envelope messages.
func (k ErrorKind) Code() string {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return kindCodes[Unexpected]
}

// Error is a classified failure. Raw holds the structured upstream payload
// when one exists.
type Error struct {
	Kind   ErrorKind
	Detail string
	Raw    any
}

func (e *Error) Error() string {
	return e.Kind.Code() + ": " + e.Detail
}

// Errorf builds a classified error with no raw payload.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsError converts any error into a classified one. Unclassified errors become
// Unexpected.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: Unexpected, Detail: err.Error()}
}

// KindOf returns the classification of err. Nil and unclassified errors
// report Unexpected.
func KindOf(err error) ErrorKind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return Unexpected
}
