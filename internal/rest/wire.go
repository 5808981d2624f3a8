// Package rest implements types.Transport over the catalog's HTTP protocol.
// It also holds the wire records and path encoding shared with the server
// in internal/restserver.
package rest

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// PathPrefix is the version prefix of every route.
const PathPrefix = "/v1"

// Query parameters.
const (
	ParamParent = "parent"
	ParamPurge  = "purgeRequested"
)

// namespaceSeparator joins namespace segments in a path element. It is the
// ASCII unit separator, written %1F once escaped.
const namespaceSeparator = "\x1f"

// Error types carried in the error envelope.
const (
	ErrorTypeNotFound      = "NoSuchEntityException"
	ErrorTypeAlreadyExists = "AlreadyExistsException"
	ErrorTypeCommitFailed  = "CommitFailedException"
	ErrorTypeBadRequest    = "BadRequestException"
	ErrorTypeServer        = "ServerErrorException"
)

// CreateNamespaceRequest is the body of POST /namespaces.
type CreateNamespaceRequest struct {
	Namespace  []string          `json:"namespace"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ErrorModel describes a failed request.
type ErrorModel struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorModel `json:"error"`
}

// EncodeNamespace renders ns as a single escaped path element.
func EncodeNamespace(ns types.Namespace) string {
	return url.PathEscape(strings.Join(ns, namespaceSeparator))
}

// DecodeNamespace is the inverse of EncodeNamespace for an already
// unescaped path element.
func DecodeNamespace(element string) (types.Namespace, error) {
	if element == "" {
		return nil, fmt.Errorf("%w: empty namespace", types.ErrMalformedIdentifier)
	}
	return types.NewNamespace(strings.Split(element, namespaceSeparator)...)
}

// StatusFor maps a service error to its HTTP status and error type.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, ErrorTypeNotFound
	case errors.Is(err, types.ErrAlreadyExists):
		return http.StatusConflict, ErrorTypeAlreadyExists
	case errors.Is(err, types.ErrCommitConflict):
		return http.StatusConflict, ErrorTypeCommitFailed
	case errors.Is(err, types.ErrInvalidRequest), errors.Is(err, types.ErrMalformedIdentifier):
		return http.StatusBadRequest, ErrorTypeBadRequest
	default:
		return http.StatusInternalServerError, ErrorTypeServer
	}
}

// NewErrorResponse builds the envelope for err.
func NewErrorResponse(err error) (int, ErrorResponse) {
	status, typ := StatusFor(err)
	return status, ErrorResponse{Error: ErrorModel{Message: err.Error(), Type: typ, Code: status}}
}
