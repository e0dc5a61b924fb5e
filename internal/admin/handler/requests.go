package handler

import (
	"strings"

	"kycflow/internal/kyc/models"
	dErrors "kycflow/pkg/domain-errors"
)

// ReviewRequest is the body of POST /admin/applications/{id}/review.
type ReviewRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`

	parsedAction models.ReviewAction
}

func (r *ReviewRequest) Normalize() {
	r.Notes = strings.TrimSpace(r.Notes)
}

func (r *ReviewRequest) Validate() error {
	if len(r.Notes) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "notes must be at most 2000 characters")
	}
	action, err := models.ParseReviewAction(r.Action)
	if err != nil {
		return err
	}
	r.parsedAction = action
	return nil
}

func (r *ReviewRequest) ParsedAction() models.ReviewAction {
	return r.parsedAction
}
