package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"starbase/internal/engine"
	"starbase/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"unknown_person"`
	Message string         `json:"message" example:"no person with that name exists"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type requestIDKey struct{}

// New returns an HTTP handler exposing the Starbase API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Starbase API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerPersons(group, cfg.Engine)
	registerDuties(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	return router, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, engine.ErrUnknownPerson):
		return newAPIError(http.StatusNotFound, "unknown_person", err.Error(), nil)
	case errors.Is(err, engine.ErrDuplicateAssignment):
		return newAPIError(http.StatusConflict, "duplicate_assignment", err.Error(), nil)
	case errors.Is(err, engine.ErrPersonExists):
		return newAPIError(http.StatusConflict, "person_exists", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "required") || strings.Contains(lowered, "invalid") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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

func registerPersons(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-person",
		Method:        http.MethodPost,
		Path:          "/persons",
		Summary:       "Create person",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreatePersonRequest `json:"body"`
	}) (*struct {
		Body PersonResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePerson(ctx, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PersonResponse `json:"body"`
		}{Body: PersonResponse{PersonID: p.ID, Name: p.Name}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-persons",
		Method:      http.MethodGet,
		Path:        "/persons",
		Summary:     "List persons with their current career status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PersonResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListPersonAstronauts(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []PersonResponse `json:"body"`
		}{Body: mapPersons(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-person",
		Method:      http.MethodGet,
		Path:        "/persons/{name}",
		Summary:     "Get person by name",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body PersonResponse `json:"body"`
	}, error) {
		pa, err := e.Repo.GetPersonAstronautByName(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PersonResponse `json:"body"`
		}{Body: personResponse(pa)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-person-duties",
		Method:      http.MethodGet,
		Path:        "/persons/{name}/duties",
		Summary:     "Get a person's duty history, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body PersonDutiesResponse `json:"body"`
	}, error) {
		pa, err := e.Repo.GetPersonAstronautByName(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		duties, err := e.Repo.ListDutiesByPerson(ctx, pa.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PersonDutiesResponse `json:"body"`
		}{Body: PersonDutiesResponse{
			Person: personResponse(pa),
			Duties: mapDuties(duties),
		}}, nil
	})
}

func registerDuties(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "assign-duty",
		Method:      http.MethodPost,
		Path:        "/duties",
		Summary:     "Assign a duty and reconcile the person's timeline",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body AssignDutyRequest `json:"body"`
	}) (*struct {
		Body AssignDutyResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.AssignDuty(ctx, engine.AssignDutyRequest{
			Name:          input.Body.Name,
			Rank:          input.Body.Rank,
			DutyTitle:     input.Body.DutyTitle,
			DutyStartDate: input.Body.DutyStartDate,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignDutyResponse `json:"body"`
		}{Body: AssignDutyResponse{
			Success: res.Success,
			Message: res.Message,
			ID:      res.ID,
		}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event log, newest first",
	}, func(ctx context.Context, input *struct {
		Limit  int   `query:"limit"`
		Cursor int64 `query:"cursor"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.LatestEvents(ctx, input.Limit, input.Cursor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
