package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rechargecodes-backend/api/middleware"
	"github.com/angelmondragon/rechargecodes-backend/api/responses"
	"github.com/angelmondragon/rechargecodes-backend/api/validators"
	"github.com/angelmondragon/rechargecodes-backend/internal/allocator"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
)

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type assignRequest struct {
	CodeID uuid.UUID `json:"code_id" validate:"required"`
}

// RejectPayment records a failed payment for an open checkout.
func RejectPayment(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchases service unavailable"))
			return
		}
		purchaseID, err := pathUUID(r, "purchaseId", "purchase id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rejectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.RejectPayment(r.Context(), purchases.RejectInput{
			PurchaseID:    purchaseID,
			Reason:        validators.SanitizeString(body.Reason, 255),
			ResellerScope: resellerScope(r),
			Actor:         middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, purchase)
	}
}

// PendingDeliveries lists purchases waiting for a code.
func PendingDeliveries(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchases service unavailable"))
			return
		}
		list, err := svc.ListPendingDeliveries(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"purchases": list})
	}
}

// ApprovedPurchases returns a cursor page of approved purchases.
func ApprovedPurchases(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchases service unavailable"))
			return
		}
		params, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListApprovedPage(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AssignCode hands a specific available code to a parked purchase.
func AssignCode(svc allocator.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "allocator unavailable"))
			return
		}
		purchaseID, err := pathUUID(r, "purchaseId", "purchase id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body assignRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.AssignCodeToPending(r.Context(), allocator.AssignInput{
			PurchaseID: purchaseID,
			CodeID:     body.CodeID,
			Actor:      middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
