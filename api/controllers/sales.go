package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/rechargecodes-backend/api/middleware"
	"github.com/angelmondragon/rechargecodes-backend/api/responses"
	"github.com/angelmondragon/rechargecodes-backend/api/validators"
	"github.com/angelmondragon/rechargecodes-backend/internal/allocator"
	"github.com/angelmondragon/rechargecodes-backend/internal/purchases"
	"github.com/angelmondragon/rechargecodes-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/rechargecodes-backend/pkg/errors"
	"github.com/angelmondragon/rechargecodes-backend/pkg/logger"
)

// sellRequest settles an open checkout by purchase_id or records a direct sale for buyer.
type sellRequest struct {
	PurchaseID *uuid.UUID       `json:"purchase_id,omitempty"`
	Buyer      *purchases.Buyer `json:"buyer,omitempty" validate:"required_without=PurchaseID"`
}

type checkoutRequest struct {
	Buyer purchases.Buyer `json:"buyer"`
}

// Sell records a paid checkout. A sale parked for lack of stock answers 202.
func Sell(svc allocator.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "allocator unavailable"))
			return
		}
		planID, err := pathUUID(r, "planId", "plan id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body sellRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var buyer purchases.Buyer
		if body.Buyer != nil {
			buyer = *body.Buyer
		}
		result, err := svc.Sell(r.Context(), allocator.SellInput{
			PlanID:        planID,
			PurchaseID:    body.PurchaseID,
			ResellerScope: resellerScope(r),
			Buyer:         scopeBuyer(r, buyer),
			Actor:         middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if !result.Success {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// OpenCheckout records a pending purchase ahead of payment.
func OpenCheckout(svc purchases.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "purchases service unavailable"))
			return
		}
		planID, err := pathUUID(r, "planId", "plan id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		purchase, err := svc.OpenCheckout(r.Context(), purchases.CheckoutInput{
			PlanID: planID,
			Buyer:  scopeBuyer(r, body.Buyer),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, purchase)
	}
}

// resellerScope is nil for admins. Other callers are limited to the reseller in
// their token; a token without one gets uuid.Nil, which owns no purchase.
func resellerScope(r *http.Request) *uuid.UUID {
	if middleware.RoleFromContext(r.Context()) == enums.MemberRoleAdmin {
		return nil
	}
	rid, err := uuid.Parse(middleware.ResellerIDFromContext(r.Context()))
	if err != nil {
		rid = uuid.Nil
	}
	return &rid
}

// scopeBuyer pins non-admin sellers to the reseller named in their token.
func scopeBuyer(r *http.Request, buyer purchases.Buyer) purchases.Buyer {
	scope := resellerScope(r)
	if scope == nil {
		return buyer
	}
	buyer.ResellerID = nil
	if *scope != uuid.Nil {
		buyer.ResellerID = scope
	}
	return buyer
}
