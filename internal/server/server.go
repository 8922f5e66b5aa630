package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"servicelog/internal/domain"
	"servicelog/internal/engine"
	"servicelog/internal/store"
	"servicelog/internal/view"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	View     view.View
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"cannot verify a plan in status planned; it has not been completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Service Log API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Store))
	hcfg := huma.DefaultConfig("Service Log API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerPlans(group, cfg.Engine)
	registerTransitions(group, cfg.Engine)
	registerHistory(group, cfg.Engine)
	registerViews(group, cfg.View)
	registerActors(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's typed errors onto the HTTP envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "validation_error", err.Error(), map[string]any{"field": ve.Field})
	}
	var te engine.InvalidTransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"current_status": te.Current,
			"action":         te.Action,
		})
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "service plan not found", nil)
	}
	var pe engine.PersistenceError
	if errors.As(err, &pe) {
		// Nothing was committed; the caller may retry the same request.
		return newAPIError(http.StatusInternalServerError, "persistence_error", "storage failure, retry safe", map[string]any{"op": pe.Op})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_transition"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func actorFromPrincipal(p Principal) engine.Actor {
	return engine.Actor{
		OrganizationID: p.OrganizationID,
		ID:             p.ActorID,
		Role:           p.Role,
	}
}

type PlanPath struct {
	PlanID string `path:"plan_id"`
}

type planBody struct {
	Body domain.ServicePlan
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerPlans(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-plan",
		Method:      http.MethodPost,
		Path:        "/plans",
		Summary:     "Create a service plan",
	}, func(ctx context.Context, input *struct {
		Body CreatePlanRequest
	}) (*planBody, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePlan(ctx, actorFromPrincipal(principal), engine.CreateOptions{
			ServiceType:    domain.ServiceType(input.Body.ServiceType),
			PlannedDate:    input.Body.PlannedDate,
			PlannedTime:    deref(input.Body.PlannedTime),
			PlannedMinutes: input.Body.PlannedMinutes,
			Setting:        domain.Setting(input.Body.Setting),
			ServiceCode:    deref(input.Body.ServiceCode),
			ParticipantID:  deref(input.Body.ParticipantID),
			LessonID:       deref(input.Body.LessonID),
			GoalID:         deref(input.Body.GoalID),
			PlanningNotes:  deref(input.Body.PlanningNotes),
			Schedule:       input.Body.Schedule,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &planBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/plans",
		Summary:     "List service plans",
	}, func(ctx context.Context, input *struct {
		View          string `query:"view" enum:"upcoming,completed,review,all"`
		Status        string `query:"status" enum:"draft,planned,approved,completed,verified"`
		ParticipantID string `query:"participant_id"`
		Mine          bool   `query:"mine" doc:"Only plans created by the caller"`
	}) (*struct {
		Body PlanListResponse
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := store.ListFilter{
			View:          input.View,
			Status:        domain.Status(input.Status),
			ParticipantID: input.ParticipantID,
		}
		if input.Mine || principal.Role == domain.RolePeer {
			// Peers only ever see their own plans.
			f.CreatedBy = principal.ActorID
		}
		items, err := e.Store.ListPlans(ctx, principal.OrganizationID, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanListResponse
		}{Body: PlanListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-plan",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}",
		Summary:     "Get a service plan",
	}, func(ctx context.Context, input *PlanPath) (*planBody, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Store.GetPlan(ctx, principal.OrganizationID, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &planBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-plan",
		Method:      http.MethodPatch,
		Path:        "/plans/{plan_id}",
		Summary:     "Edit a draft plan's planning attributes",
	}, func(ctx context.Context, input *struct {
		PlanPath
		Body UpdatePlanRequest
	}) (*planBody, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		upd := engine.DraftUpdate{
			PlannedDate:    input.Body.PlannedDate,
			PlannedTime:    input.Body.PlannedTime,
			PlannedMinutes: input.Body.PlannedMinutes,
			ServiceCode:    input.Body.ServiceCode,
			ParticipantID:  input.Body.ParticipantID,
			LessonID:       input.Body.LessonID,
			GoalID:         input.Body.GoalID,
			PlanningNotes:  input.Body.PlanningNotes,
		}
		if input.Body.ServiceType != nil {
			st := domain.ServiceType(*input.Body.ServiceType)
			upd.ServiceType = &st
		}
		if input.Body.Setting != nil {
			s := domain.Setting(*input.Body.Setting)
			upd.Setting = &s
		}
		p, err := e.UpdateDraft(ctx, actorFromPrincipal(principal), input.PlanID, upd)
		if err != nil {
			return nil, handleError(err)
		}
		return &planBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-plan",
		Method:      http.MethodDelete,
		Path:        "/plans/{plan_id}",
		Summary:     "Cancel a draft or planned service plan",
	}, func(ctx context.Context, input *struct {
		PlanPath
		Comment string `query:"comment"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.Cancel(ctx, actorFromPrincipal(principal), input.PlanID, input.Comment); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerTransitions(api huma.API, e engine.Engine) {
	type transitionFunc func(ctx context.Context, actor engine.Actor, planID, comment string) (domain.ServicePlan, error)
	register := func(opID, pathSuffix, summary string, fn transitionFunc) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/plans/{plan_id}/" + pathSuffix,
			Summary:     summary,
		}, func(ctx context.Context, input *struct {
			PlanPath
			Body DecisionRequest
		}) (*planBody, error) {
			principal, authErr := requirePrincipal(ctx)
			if authErr != nil {
				return nil, authErr
			}
			p, err := fn(ctx, actorFromPrincipal(principal), input.PlanID, deref(input.Body.Comment))
			if err != nil {
				return nil, handleError(err)
			}
			return &planBody{Body: p}, nil
		})
	}

	register("submit-plan", "submit", "Submit a draft plan for review",
		func(ctx context.Context, actor engine.Actor, planID, _ string) (domain.ServicePlan, error) {
			return e.Submit(ctx, actor, planID)
		})
	register("approve-plan", "approve", "Approve a planned service", e.Approve)
	register("comment-plan", "comment", "Comment on a plan under review", e.Comment)
	register("request-change", "request-change", "Return a planned service to draft", e.RequestChange)
	register("verify-plan", "verify", "Verify a completed service", e.Verify)

	huma.Register(api, huma.Operation{
		OperationID: "complete-plan",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/complete",
		Summary:     "Record delivery of a planned or approved service",
	}, func(ctx context.Context, input *struct {
		PlanPath
		Body CompletePlanRequest
	}) (*planBody, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Complete(ctx, actorFromPrincipal(principal), input.PlanID, engine.CompleteOptions{
			ActualMinutes:      input.Body.ActualMinutes,
			AttendanceCount:    input.Body.AttendanceCount,
			DeliveredAsPlanned: input.Body.DeliveredAsPlanned,
			DeviationNotes:     deref(input.Body.DeviationNotes),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &planBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-session-note",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/session-note",
		Summary:     "Link an externally produced session note",
	}, func(ctx context.Context, input *struct {
		PlanPath
		Body LinkSessionNoteRequest
	}) (*planBody, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetSessionNote(ctx, actorFromPrincipal(principal), input.PlanID, input.Body.SessionNoteID)
		if err != nil {
			return nil, handleError(err)
		}
		return &planBody{Body: p}, nil
	})
}

func registerHistory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-history",
		Method:      http.MethodGet,
		Path:        "/plans/{plan_id}/history",
		Summary:     "Audit trail for a plan, in insertion order",
	}, func(ctx context.Context, input *PlanPath) (*struct {
		Body HistoryResponse
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		events, err := e.History(ctx, principal.OrganizationID, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse
		}{Body: HistoryResponse{Items: events}}, nil
	})
}

func registerViews(api huma.API, v view.View) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Peer dashboard: per-status counts, this-week and overdue",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Dashboard
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := v.PeerDashboard(ctx, principal.OrganizationID, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dashboard
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-queue",
		Method:      http.MethodGet,
		Path:        "/review-queue",
		Summary:     "Supervisor queue: plans pending approval or verification",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ReviewQueueResponse
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleSupervisor {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "the review queue is supervisor-only", nil)
		}
		items, err := v.ReviewQueue(ctx, principal.OrganizationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReviewQueueResponse
		}{Body: ReviewQueueResponse{Items: items}}, nil
	})
}

func registerActors(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-actors",
		Method:      http.MethodGet,
		Path:        "/actors",
		Summary:     "List organization members",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ActorListResponse
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Store.ListActors(ctx, principal.OrganizationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActorListResponse
		}{Body: ActorListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "upsert-actor",
		Method:      http.MethodPut,
		Path:        "/actors/{actor_id}",
		Summary:     "Register or update an organization member",
	}, func(ctx context.Context, input *struct {
		ActorID string `path:"actor_id"`
		Body    UpsertActorRequest
	}) (*struct {
		Body domain.Actor
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleSupervisor {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only a supervisor can manage members", nil)
		}
		role := domain.Role(input.Body.Role)
		if !domain.ValidRole(role) {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", fmt.Sprintf("unknown role %q", input.Body.Role), nil)
		}
		a := domain.Actor{
			ID:             input.ActorID,
			OrganizationID: principal.OrganizationID,
			DisplayName:    input.Body.DisplayName,
			Role:           role,
			CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		}
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := e.Store.UpsertActor(ctx, tx, a); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor
		}{Body: a}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-api-key",
		Method:      http.MethodPost,
		Path:        "/api-keys",
		Summary:     "Mint an API key for an actor",
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest
	}) (*struct {
		Body APIKeyResponse
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actorID := input.Body.ActorID
		if actorID == "" {
			actorID = principal.ActorID
		}
		if actorID != principal.ActorID && principal.Role != domain.RoleSupervisor {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only a supervisor can mint keys for other actors", nil)
		}
		plaintext, key, err := e.Store.MintAPIKey(ctx, principal.OrganizationID, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse
		}{Body: APIKeyResponse{ID: key.ID, ActorID: key.ActorID, Name: key.Name, Key: plaintext, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body APIKeyListResponse
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actorFilter := principal.ActorID
		if principal.Role == domain.RoleSupervisor {
			actorFilter = ""
		}
		keys, err := e.Store.ListAPIKeys(ctx, actorFilter)
		if err != nil {
			return nil, handleError(err)
		}
		items := make([]APIKeyResponse, 0, len(keys))
		for _, k := range keys {
			items = append(items, APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt})
		}
		return &struct {
			Body APIKeyListResponse
		}{Body: APIKeyListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{key_id}",
		Summary:     "Delete an API key",
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if principal.Role != domain.RoleSupervisor {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only a supervisor can delete keys", nil)
		}
		if err := e.Store.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "The authenticated caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse
	}, error) {
		principal, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out := MeResponse{
			ActorID:        principal.ActorID,
			OrganizationID: principal.OrganizationID,
			Role:           string(principal.Role),
			Source:         principal.Source,
		}
		if a, err := e.Store.GetActor(ctx, principal.OrganizationID, principal.ActorID); err == nil {
			out.DisplayName = a.DisplayName
		}
		return &struct {
			Body MeResponse
		}{Body: out}, nil
	})
}

func registerDevAuth(api huma.API, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a short-lived JWT (development only)",
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest
	}) (*struct {
		Body DevLoginResponse
	}, error) {
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "dev login disabled: no jwt secret configured", nil)
		}
		if input.Body.ActorID == "" || input.Body.OrganizationID == "" || !domain.ValidRole(domain.Role(input.Body.Role)) {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "actor_id, organization_id and role are required", nil)
		}
		expires := time.Now().Add(time.Hour)
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   input.Body.ActorID,
				ExpiresAt: jwt.NewNumericDate(expires),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			},
			OrganizationID: input.Body.OrganizationID,
			Role:           input.Body.Role,
		})
		signed, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "sign token", nil)
		}
		return &struct {
			Body DevLoginResponse
		}{Body: DevLoginResponse{Token: signed, ExpiresAt: expires.UTC().Format(time.RFC3339)}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	openPaths := map[string]bool{}
	for _, p := range []string{"health", "auth/dev/login"} {
		full := path.Join(basePath, p)
		if !strings.HasPrefix(full, "/") {
			full = "/" + full
		}
		openPaths[full] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if openPaths[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Service Log API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
