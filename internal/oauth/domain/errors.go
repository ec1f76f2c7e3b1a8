package domain

import "errors"

var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidRedirectURI      = errors.New("invalid_redirect_uri")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrAccessDenied            = errors.New("access_denied")
	ErrPKCERequired            = errors.New("pkce_required")
	ErrPKCEMismatch            = errors.New("pkce_verification_failed")
	ErrInvalidToken            = errors.New("invalid_token")
	ErrClientNotFound          = errors.New("client not found")
)
