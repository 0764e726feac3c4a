package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tixmarket-backend/api/middleware"
	"github.com/angelmondragon/tixmarket-backend/api/responses"
	"github.com/angelmondragon/tixmarket-backend/api/validators"
	"github.com/angelmondragon/tixmarket-backend/internal/escrow"
	"github.com/angelmondragon/tixmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tixmarket-backend/pkg/errors"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
)

const maxPaymentReferenceLen = 255

type CreateHoldRequest struct {
	EventID          string `json:"event_id" validate:"required,uuid"`
	TicketID         string `json:"ticket_id" validate:"required,uuid"`
	PaymentReference string `json:"payment_reference" validate:"required,max=255"`
	TotalAmount      int64  `json:"total_amount"`
}

type ReleaseRequest struct {
	HoldID  string `json:"hold_id" validate:"required,uuid"`
	AdminID string `json:"admin_id" validate:"required,uuid"`
}

// EscrowCreateHold is called by checkout once a purchase is paid. A failed
// fund movement answers with a dependency error that still names the hold.
func EscrowCreateHold(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body CreateHoldRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.TotalAmount <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "total_amount must be a positive number of cents").
				WithDetails(map[string]any{"field": "total_amount"}))
			return
		}

		result, err := svc.CreateHold(r.Context(), escrow.CreateHoldInput{
			EventID:          uuid.MustParse(body.EventID),
			TicketID:         uuid.MustParse(body.TicketID),
			PaymentReference: validators.CleanReference(body.PaymentReference, maxPaymentReferenceLen),
			TotalAmountCents: body.TotalAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func EscrowRetryFunding(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		holdID, err := validators.ParseUUIDParam(r, "holdId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RetryFunding(r.Context(), holdID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// EscrowRelease releases a held hold. The admin id in the body must be the
// authenticated caller.
func EscrowRelease(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body ReleaseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		adminID := uuid.MustParse(body.AdminID)
		if middleware.UserIDFromContext(r.Context()) != adminID.String() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin_id does not match caller"))
			return
		}

		result, err := svc.Release(r.Context(), escrow.ReleaseInput{
			HoldID:  uuid.MustParse(body.HoldID),
			AdminID: adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func EscrowList(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		var status enums.EscrowStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err = enums.ParseEscrowStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
		}
		limit, err := validators.ParseLimit(r, "limit", 200, 1000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.ListForPayout(r.Context(), escrow.ListInput{
			AdminID: adminID,
			Status:  status,
			Limit:   limit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

// EscrowSweep runs the release sweep on demand. The scheduler and admins
// share this handler.
func EscrowSweep(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "caller", middleware.CallerFromContext(ctx))
		}
		report, err := svc.Sweep(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
