package handlers

import (
	"errors"

	"github.com/evalforge/evalforge/internal/services"
	appErrors "github.com/evalforge/evalforge/pkg/errors"
)

// mapServiceError translates service sentinel errors into API errors.
// Anything unrecognised becomes a 500 carrying the original for logging.
func mapServiceError(err error) *appErrors.AppError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrNotAuthenticated):
		return appErrors.ErrUnauthorized
	case errors.Is(err, services.ErrNotMember),
		errors.Is(err, services.ErrInsufficientRole),
		errors.Is(err, services.ErrVideoForbidden):
		return appErrors.ErrForbidden
	case errors.Is(err, services.ErrOrganizationNotFound),
		errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, services.ErrInvitationNotFound),
		errors.Is(err, services.ErrExperimentNotFound),
		errors.Is(err, services.ErrStudyNotLinked),
		errors.Is(err, services.ErrVideoNotFound):
		return appErrors.NewNotFound(err.Error())
	case errors.Is(err, services.ErrLastOwner),
		errors.Is(err, services.ErrInvitationConflict),
		errors.Is(err, services.ErrAlreadyMember):
		return appErrors.NewConflict(err.Error())
	case errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, services.ErrRoleNotInvitable),
		errors.Is(err, services.ErrInvalidSubmissionAction),
		errors.Is(err, services.ErrNoCredentials):
		return appErrors.NewBadRequest(err.Error())
	default:
		return appErrors.ErrInternalServer.WithInternal(err)
	}
}
