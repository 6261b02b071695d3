// Package api exposes the portal over HTTP.
package api

import "github.com/kylejryan/ucehub-portal/internal/authz"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the placeholder profile and token.
type LoginResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	User    authz.User `json:"user"`
	Token   string     `json:"token"`
}

// UploadRequest asks for a presigned PUT for a record's document.
type UploadRequest struct {
	RecordID    string `json:"recordId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

// DocumentLinkResponse is returned by GET /documents/presigned/{id}/{fileName}.
type DocumentLinkResponse struct {
	Success   bool   `json:"success"`
	URL       string `json:"url"`
	FileName  string `json:"fileName"`
	ExpiresIn int    `json:"expiresIn"`
}

// ListResponse wraps a listing.
type ListResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Count   int    `json:"count"`
	Source  string `json:"source,omitempty"`
}

// DataResponse wraps a single payload.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}
