package roles

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/roledir/roledir/internal/platform/httpx"
	"github.com/roledir/roledir/internal/shared"
)

// Handler exposes the role directory over HTTP. The handler is a thin
// adapter: identity comes from the token middleware, every decision is the
// service's.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the /Roles resource on the router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/Roles", func(r chi.Router) {
		r.Get("/", h.read)
		r.Post("/", h.create)
		r.Put("/", h.update)
		r.Get("/{roleID}", h.read)
		r.Put("/{roleID}", h.update)
		r.Delete("/{roleID}", h.remove)
	})
}

type createRequest struct {
	RoleID      string   `json:"role_id" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Updaters    []string `json:"role_updater"`
	Members     []string `json:"members"`
	Read        []string `json:"read"`
	Modify      []string `json:"modify"`
	Delete      []string `json:"delete"`
	Impersonate []string `json:"impersonate"`
	Grant       []string `json:"grant"`
	Create      []string `json:"create"`
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context()).UserID

	roleID := chi.URLParam(r, "roleID")
	if roleID == "" {
		roleID = r.URL.Query().Get("role_id")
	}

	filterParam := r.URL.Query().Get("filter")
	fieldsParam := r.URL.Query().Get("fields")

	switch {
	case roleID != "":
		doc, err := h.service.Get(r.Context(), caller, roleID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	case filterParam != "":
		pred, err := parseFilter(filterParam)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		proj, err := parseFields(fieldsParam)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		results, err := h.service.Query(r.Context(), caller, pred, proj)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, results)
	default:
		body, err := h.service.Root(r.Context(), caller)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, body)
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context()).UserID

	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, &shared.ValidationError{Field: "body", Detail: "malformed JSON"})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			httpx.RespondError(w, &shared.ValidationError{Field: jsonFieldName(verrs[0].Field())})
			return
		}
		httpx.RespondError(w, &shared.ValidationError{Field: "body", Detail: err.Error()})
		return
	}

	doc := Document{
		RoleID:      req.RoleID,
		Description: req.Description,
		Updaters:    req.Updaters,
		Members:     req.Members,
		Read:        req.Read,
		Modify:      req.Modify,
		Delete:      req.Delete,
		Impersonate: req.Impersonate,
		Grant:       req.Grant,
		Create:      req.Create,
	}
	created, err := h.service.Create(r.Context(), caller, doc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context()).UserID

	// The role id comes from the path, or from the body for bare PUTs.
	roleID := chi.URLParam(r, "roleID")

	var payload struct {
		RoleID string `json:"role_id"`
		Update
	}
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.RespondError(w, &shared.ValidationError{Field: "body", Detail: "malformed JSON"})
		return
	}
	if roleID == "" {
		roleID = payload.RoleID
	}
	if roleID == "" {
		httpx.RespondError(w, &shared.ValidationError{Field: "role_id"})
		return
	}

	updated, err := h.service.Update(r.Context(), caller, roleID, payload.Update)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context()).UserID

	roleID := chi.URLParam(r, "roleID")
	if roleID == "" {
		httpx.RespondError(w, &shared.ValidationError{Field: "role_id"})
		return
	}
	if err := h.service.Remove(r.Context(), caller, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseFilter turns the filter query parameter into a predicate. The wire
// form is a JSON object mapping field names to either a bare string (set
// membership for set fields, equality for scalars) or an object selecting
// the operator explicitly: {"role_id": {"regex": ".*test.*"}}.
func parseFilter(raw string) (Predicate, error) {
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Predicate{}, &shared.ValidationError{Field: "filter", Detail: "malformed JSON"}
	}
	fields := make([]string, 0, len(parsed))
	for f := range parsed {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var pred Predicate
	for _, field := range fields {
		if !KnownField(field) {
			return Predicate{}, &shared.ValidationError{Field: field, Detail: "unknown query field"}
		}
		value := parsed[field]

		var str string
		if err := json.Unmarshal(value, &str); err == nil {
			op := OpEquals
			if IsSetField(field) {
				op = OpContains
			}
			pred.Conditions = append(pred.Conditions, Condition{Field: field, Op: op, Value: str})
			continue
		}

		var explicit map[string]string
		if err := json.Unmarshal(value, &explicit); err != nil || len(explicit) != 1 {
			return Predicate{}, &shared.ValidationError{Field: field, Detail: "expected a string or a single-operator object"}
		}
		for opName, opValue := range explicit {
			op := MatchOp(opName)
			switch op {
			case OpEquals, OpRegex, OpContains:
				pred.Conditions = append(pred.Conditions, Condition{Field: field, Op: op, Value: opValue})
			default:
				return Predicate{}, &shared.ValidationError{Field: field, Detail: fmt.Sprintf("unknown operator %q", opName)}
			}
		}
	}
	if err := pred.Validate(); err != nil {
		return Predicate{}, err
	}
	return pred, nil
}

// parseFields turns the fields query parameter into a projection. Accepts
// a JSON array or a comma-separated list.
func parseFields(raw string) (Projection, error) {
	if raw == "" {
		return nil, nil
	}
	var proj Projection
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		if err := json.Unmarshal([]byte(raw), &proj); err != nil {
			return nil, &shared.ValidationError{Field: "fields", Detail: "malformed JSON array"}
		}
	} else {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				proj = append(proj, f)
			}
		}
	}
	if err := proj.Validate(); err != nil {
		return nil, err
	}
	return proj, nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// jsonFieldName maps struct field names back to their wire names for
// error messages.
func jsonFieldName(structField string) string {
	switch structField {
	case "RoleID":
		return "role_id"
	case "Description":
		return "description"
	default:
		return strings.ToLower(structField)
	}
}
