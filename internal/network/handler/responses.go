package handler

import (
	"refnet/internal/network/models"
	"refnet/internal/network/projection"
)

// ResolveResponse is returned by GET /v1/codes/{code}.
type ResolveResponse struct {
	Code   models.Code   `json:"code"`
	NodeID models.NodeID `json:"node_id"`
}

// AuditResponse is the audit report plus a summary flag.
type AuditResponse struct {
	projection.Report
	Clean bool `json:"clean"`
}

// FromReport converts an audit report to its wire form.
func FromReport(r projection.Report) AuditResponse {
	return AuditResponse{Report: r, Clean: r.Clean()}
}
