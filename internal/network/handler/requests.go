package handler

import (
	"strings"

	dErrors "refnet/pkg/domain-errors"
)

// JoinRequest is the HTTP request body for POST /v1/joins.
type JoinRequest struct {
	ExternalKey  string `json:"external_key"`
	ReferrerCode string `json:"referrer_code,omitempty"`
}

// Normalize trims the inputs. Code casing is left to the resolver.
func (r *JoinRequest) Normalize() {
	r.ExternalKey = strings.TrimSpace(r.ExternalKey)
	r.ReferrerCode = strings.TrimSpace(r.ReferrerCode)
}

// Validate rejects requests the service would refuse anyway. A malformed
// referrer code is not an error: the member is attached to the root.
func (r *JoinRequest) Validate() error {
	if r.ExternalKey == "" {
		return dErrors.New(dErrors.CodeValidation, "external_key is required")
	}
	if len(r.ExternalKey) > 128 {
		return dErrors.New(dErrors.CodeValidation, "external_key must be 128 characters or less")
	}
	if len(r.ReferrerCode) > 64 {
		return dErrors.New(dErrors.CodeValidation, "referrer_code must be 64 characters or less")
	}
	return nil
}
