package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bundleworks-backend/api/responses"
	"github.com/angelmondragon/bundleworks-backend/api/validators"
	"github.com/angelmondragon/bundleworks-backend/internal/bundles"
	pkgerrors "github.com/angelmondragon/bundleworks-backend/pkg/errors"
	"github.com/angelmondragon/bundleworks-backend/pkg/logger"
	"github.com/angelmondragon/bundleworks-backend/pkg/types"
)

// Intent discriminators accepted by the bundle actions endpoint.
const (
	intentCreate         = "create"
	intentUpdate         = "update"
	intentUpdateRules    = "update-rules"
	intentUpdateBundle   = "update-bundle"
	intentDelete         = "delete"
	intentDeleteBundle   = "delete-bundle"
	intentCreateDiscount = "create-discount"
	intentRevokeDiscount = "revoke-discount"
)

const maxFieldLen = 255

type createBundleRequest struct {
	Intent          string            `json:"intent" validate:"required"`
	Name            string            `json:"name" validate:"required"`
	CollectionID    string            `json:"collection_id" validate:"required"`
	CollectionTitle string            `json:"collection_title"`
	Rules           types.BundleRules `json:"rules" validate:"required"`
}

type updateNameRequest struct {
	Intent   string `json:"intent" validate:"required"`
	BundleID string `json:"bundle_id" validate:"required,uuid"`
	Name     string `json:"name" validate:"required"`
}

type updateRulesRequest struct {
	Intent   string            `json:"intent" validate:"required"`
	BundleID string            `json:"bundle_id" validate:"required,uuid"`
	Rules    types.BundleRules `json:"rules" validate:"required"`
}

type updateBundleRequest struct {
	Intent   string            `json:"intent" validate:"required"`
	BundleID string            `json:"bundle_id" validate:"required,uuid"`
	Name     string            `json:"name" validate:"required"`
	Rules    types.BundleRules `json:"rules" validate:"required"`
}

type deleteBundleRequest struct {
	Intent   string `json:"intent" validate:"required"`
	BundleID string `json:"bundle_id" validate:"required,uuid"`
}

type discountActionRequest struct {
	Intent    string `json:"intent" validate:"required"`
	BundleID  string `json:"bundle_id" validate:"required,uuid"`
	RuleIndex *int   `json:"rule_index" validate:"required"`
}

// ListBundles returns every bundle, newest first.
func ListBundles(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GetBundle returns a single bundle by id.
func GetBundle(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "bundleId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid bundle id"))
			return
		}
		dto, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// BundleActions dispatches the intent-discriminated mutation envelope. Each
// intent has its own typed request parsed once at this boundary.
func BundleActions(svc bundles.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
			return
		}

		var envelope struct {
			Intent string `json:"intent"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		switch envelope.Intent {
		case intentCreate:
			handleCreateBundle(svc, logg, w, r)
		case intentUpdate:
			handleUpdateName(svc, logg, w, r)
		case intentUpdateRules:
			handleUpdateRules(svc, logg, w, r)
		case intentUpdateBundle:
			handleUpdateBundle(svc, logg, w, r)
		case intentDelete, intentDeleteBundle:
			handleDeleteBundle(svc, logg, w, r)
		case intentCreateDiscount:
			handleDiscountAction(svc.IssueDiscount, logg, w, r)
		case intentRevokeDiscount:
			handleDiscountAction(svc.RevokeDiscount, logg, w, r)
		default:
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown intent").
				WithDetails(map[string]any{"intent": envelope.Intent}))
		}
	}
}

func handleCreateBundle(svc bundles.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	var req createBundleRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	dto, err := svc.CreateBundle(r.Context(), bundles.CreateBundleDTO{
		Name:            validators.SanitizeString(req.Name, maxFieldLen),
		CollectionID:    validators.SanitizeString(req.CollectionID, maxFieldLen),
		CollectionTitle: validators.SanitizeString(req.CollectionTitle, maxFieldLen),
		Rules:           req.Rules,
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, dto)
}

func handleUpdateName(svc bundles.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	var req updateNameRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	name := validators.SanitizeString(req.Name, maxFieldLen)
	dto, err := svc.UpdateBundle(r.Context(), uuid.MustParse(req.BundleID), bundles.UpdateBundleInput{Name: &name})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, dto)
}

func handleUpdateRules(svc bundles.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	var req updateRulesRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	dto, err := svc.UpdateBundle(r.Context(), uuid.MustParse(req.BundleID), bundles.UpdateBundleInput{Rules: &req.Rules})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, dto)
}

func handleUpdateBundle(svc bundles.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	var req updateBundleRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	name := validators.SanitizeString(req.Name, maxFieldLen)
	dto, err := svc.UpdateBundle(r.Context(), uuid.MustParse(req.BundleID), bundles.UpdateBundleInput{
		Name:  &name,
		Rules: &req.Rules,
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, dto)
}

func handleDeleteBundle(svc bundles.Service, logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	var req deleteBundleRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if err := svc.DeleteBundle(r.Context(), uuid.MustParse(req.BundleID)); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, map[string]bool{"deleted": true})
}

func handleDiscountAction(op func(ctx context.Context, id uuid.UUID, ruleIndex int) (*bundles.BundleDTO, error), logg *logger.Logger, w http.ResponseWriter, r *http.Request) {
	var req discountActionRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	dto, err := op(r.Context(), uuid.MustParse(req.BundleID), *req.RuleIndex)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, dto)
}
