package controllers

import (
	"net/http"

	"github.com/angelmondragon/rechargecodes-backend/api/middleware"
	"github.com/angelmondragon/rechargecodes-backend/api/responses"
	"github.com/angelmondragon/rechargecodes-backend/api/validators"
	"github.com/angelmondragon/rechargecodes-backend/internal/codes"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
)

type importCodesRequest struct {
	Codes []string `json:"codes" validate:"required,min=1"`
}

// ImportCodes adds a replenishment batch to a plan's pool.
func ImportCodes(svc codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable"))
			return
		}
		planID, err := pathUUID(r, "planId", "plan id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body importCodesRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ImportCodes(r.Context(), codes.ImportInput{
			PlanID: planID,
			Codes:  body.Codes,
			Actor:  middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// CodeCounts reports a plan's pool by status.
func CodeCounts(svc codes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "codes service unavailable"))
			return
		}
		planID, err := pathUUID(r, "planId", "plan id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		counts, err := svc.Counts(r.Context(), planID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, counts)
	}
}
