package admin

import "kycflow/pkg/platform/audit"

// AuditLogPage is one page of the audit trail, newest first.
type AuditLogPage struct {
	Items    []audit.Event `json:"items"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}
