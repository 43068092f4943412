package handlers

//go:generate mockgen -source=users.go -destination=mock_users.go -package=handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sbilibin2017/user-service/internal/models"
)

const (
	defaultSkip  = 0
	defaultLimit = 100
)

// UserCreator defines the interface that the service must implement.
type UserCreator interface {
	Create(ctx context.Context, in models.UserCreate) (*models.User, error)
}

// UserLister defines the interface that the service must implement.
type UserLister interface {
	List(ctx context.Context, offset, limit int) ([]models.User, error)
}

// UserGetter defines the interface that the service must implement.
type UserGetter interface {
	Get(ctx context.Context, id int64) (*models.User, error)
}

// UserUpdater defines the interface that the service must implement.
type UserUpdater interface {
	Update(ctx context.Context, id int64, in models.UserUpdate) (*models.User, error)
}

// UserDeleter defines the interface that the service must implement.
type UserDeleter interface {
	Delete(ctx context.Context, id int64) error
}

// CreateUserRequest represents the JSON body for user creation
// swagger:model CreateUserRequest
type CreateUserRequest struct {
	// Username
	// required: true
	// default: alice
	Username string `json:"username"`

	// Email
	// required: true
	// default: alice@example.com
	Email string `json:"email"`

	// Full name
	// default: Alice Liddell
	FullName *string `json:"full_name,omitempty"`

	// Password
	// required: true
	// default: secret123
	Password string `json:"password"`

	// Active flag, defaults to true
	IsActive *bool `json:"is_active,omitempty"`

	// Superuser flag, defaults to false
	IsSuperuser *bool `json:"is_superuser,omitempty"`
}

// UpdateUserRequest represents the JSON body for a partial user update.
// Omitted fields are left unchanged.
// swagger:model UpdateUserRequest
type UpdateUserRequest struct {
	Username    *string `json:"username,omitempty"`
	Email       *string `json:"email,omitempty"`
	FullName    *string `json:"full_name,omitempty"`
	Password    *string `json:"password,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
}

// UserResponse represents a user. The credential is never included.
// swagger:model UserResponse
type UserResponse struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FullName    *string   `json:"full_name"`
	IsActive    bool      `json:"is_active"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FullName:    u.FullName,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// NewCreateUserHandler returns an HTTP handler for user creation.
// @Summary Create a user
// @Description Creates a new user. Username and email must be unique. The password is hashed before storing.
// @Tags users
// @Accept json
// @Produce json
// @Param request body handlers.CreateUserRequest true "User creation request"
// @Success 201 {object} handlers.UserResponse "Created user"
// @Failure 400 {object} handlers.ErrorResponse "Username or email already exists / malformed body"
// @Failure 422 {object} handlers.ValidationErrorResponse "Invalid fields"
// @Failure 503 {object} handlers.ErrorResponse "Store unavailable"
// @Router /users [post]
func NewCreateUserHandler(svc UserCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDetail(w, http.StatusBadRequest, msgBadJSON)
			return
		}

		user, err := svc.Create(r.Context(), models.UserCreate{
			Username:    req.Username,
			Email:       req.Email,
			FullName:    req.FullName,
			Password:    req.Password,
			IsActive:    req.IsActive,
			IsSuperuser: req.IsSuperuser,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toResponse(user))
	}
}

// NewListUsersHandler returns an HTTP handler listing users in creation order.
// @Summary List users
// @Tags users
// @Produce json
// @Param skip query int false "Number of users to skip" default(0)
// @Param limit query int false "Maximum number of users" default(100)
// @Success 200 {array} handlers.UserResponse "Users"
// @Failure 422 {object} handlers.ValidationErrorResponse "Invalid paging"
// @Failure 503 {object} handlers.ErrorResponse "Store unavailable"
// @Router /users [get]
func NewListUsersHandler(svc UserLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, ok := queryInt(r, "skip", defaultSkip)
		if !ok {
			writeParamError(w, "skip", "min=0")
			return
		}
		limit, ok := queryInt(r, "limit", defaultLimit)
		if !ok {
			writeParamError(w, "limit", "min=0")
			return
		}

		users, err := svc.List(r.Context(), skip, limit)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := make([]UserResponse, 0, len(users))
		for i := range users {
			resp = append(resp, toResponse(&users[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// NewGetUserHandler returns an HTTP handler fetching one user.
// @Summary Get a user
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} handlers.UserResponse "User"
// @Failure 404 {object} handlers.ErrorResponse "User not found"
// @Failure 422 {object} handlers.ValidationErrorResponse "Invalid id"
// @Router /users/{id} [get]
func NewGetUserHandler(svc UserGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeParamError(w, "id", "int")
			return
		}

		user, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(user))
	}
}

// NewUpdateUserHandler returns an HTTP handler applying a partial update.
// @Summary Update a user
// @Description Only the fields present in the body are changed.
// @Tags users
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body handlers.UpdateUserRequest true "Fields to change"
// @Success 200 {object} handlers.UserResponse "Updated user"
// @Failure 400 {object} handlers.ErrorResponse "Username or email already exists / malformed body"
// @Failure 404 {object} handlers.ErrorResponse "User not found"
// @Failure 422 {object} handlers.ValidationErrorResponse "Invalid fields"
// @Router /users/{id} [put]
func NewUpdateUserHandler(svc UserUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeParamError(w, "id", "int")
			return
		}

		var req UpdateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeDetail(w, http.StatusBadRequest, msgBadJSON)
			return
		}

		user, err := svc.Update(r.Context(), id, models.UserUpdate{
			Username:    req.Username,
			Email:       req.Email,
			FullName:    req.FullName,
			Password:    req.Password,
			IsActive:    req.IsActive,
			IsSuperuser: req.IsSuperuser,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toResponse(user))
	}
}

// NewDeleteUserHandler returns an HTTP handler deleting a user.
// @Summary Delete a user
// @Tags users
// @Param id path int true "User ID"
// @Success 204 "User deleted"
// @Failure 404 {object} handlers.ErrorResponse "User not found"
// @Failure 422 {object} handlers.ValidationErrorResponse "Invalid id"
// @Router /users/{id} [delete]
func NewDeleteUserHandler(svc UserDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			writeParamError(w, "id", "int")
			return
		}

		if err := svc.Delete(r.Context(), id); err != nil {
			writeServiceError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
