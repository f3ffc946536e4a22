package sso

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// APIError is the JSON body of every failed API call
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SendAPIError writes err as JSON using the status code it carries
func SendAPIError(c router.Context, err error) error {
	return c.JSON(HTTPStatus(err), APIError{
		Error: PublicMessage(err),
		Code:  TextCode(err),
	})
}

// UserProfile is the public view of a user handed to relying parties
type UserProfile struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	NationalID    string `json:"national_id"`
	Email         string `json:"email"`
	PhoneNumber   string `json:"phone_number"`
	Qualification string `json:"qualification"`
	BirthDate     string `json:"birth_date"`
	Nationality   string `json:"nationality"`
	Gender        string `json:"gender"`
	MaritalStatus string `json:"marital_status"`
	ProfileImage  string `json:"profile_image"`
}

// NewUserProfile resolves image names to public URLs
func NewUserProfile(user *User, images ImageStore) UserProfile {
	profile := UserProfile{
		ID:            user.ID.String(),
		FullName:      user.FullName,
		NationalID:    user.NationalID,
		Email:         user.Email,
		PhoneNumber:   user.PhoneNumber,
		Qualification: user.Qualification,
		BirthDate:     user.BirthDateString(),
		Nationality:   user.Nationality,
		Gender:        user.Gender,
		MaritalStatus: user.MaritalStatus,
	}
	if user.ProfileImage != "" && images != nil {
		profile.ProfileImage = images.URL(user.ProfileImage)
	}
	return profile
}

type APIController struct {
	Debug  bool
	Logger Logger
	Repo   RepositoryManager
	Auth   Authenticator
	Tokens TokenService
	Images ImageStore
	Guard  Middleware
}

type APIControllerOption func(*APIController) *APIController

func NewAPIController(opts ...APIControllerOption) *APIController {
	c := &APIController{
		Logger: defLogger{},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in api controller...")
	}

	if c.Auth == nil {
		panic("Missing Authenticator in api controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in api controller...")
	}

	return c
}

// RegisterAPIRoutes mounts the relying party endpoints under router
func RegisterAPIRoutes[T any](app router.Router[T], opts ...APIControllerOption) *APIController {
	controller := NewAPIController(opts...)

	app.Post("/sso-login", controller.SSOLogin).SetName("api.sso-login")
	app.Post("/get_user", controller.GetUser).SetName("api.get-user")

	if controller.Guard != nil {
		app.Get("/me", controller.Me, controller.Guard.APIGuard()).SetName("api.me")
	}

	return controller
}

// SSOLoginRequest payload
type SSOLoginRequest struct {
	NationalID string `json:"national_id" form:"national_id"`
	Password   string `json:"password" form:"password"`
}

func (r SSOLoginRequest) GetNationalID() string { return strings.TrimSpace(r.NationalID) }

func (r SSOLoginRequest) GetPassword() string { return r.Password }

// Validate will run validation rules
func (r SSOLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NationalID, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *APIController) SSOLogin(c router.Context) error {
	payload := new(SSOLoginRequest)

	if err := c.Bind(payload); err != nil {
		a.Logger.Debug("sso login parse payload: %v", err)
		return c.JSON(router.StatusBadRequest, APIError{
			Error: "national_id and password are required",
			Code:  TextCodeEmptyString,
		})
	}

	if err := payload.Validate(); err != nil {
		return c.JSON(router.StatusBadRequest, map[string]any{
			"error":      "national_id and password are required",
			"code":       TextCodeEmptyString,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("api sso login: %s", print.MaybePrettyJSON(map[string]any{"national_id": payload.NationalID}))
	}

	token, err := a.Auth.Login(c.Context(), payload.GetNationalID(), payload.GetPassword())
	if err != nil {
		if !IsError(err, ErrInvalidCredentials) && !IsError(err, ErrIncompleteAccount) {
			a.Logger.Error("api sso login: %v", err)
		}
		return SendAPIError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]string{"token": token})
}

// GetUserRequest payload
type GetUserRequest struct {
	Token string `json:"token" form:"token"`
}

func (a *APIController) GetUser(c router.Context) error {
	payload := new(GetUserRequest)
	if err := c.Bind(payload); err != nil {
		a.Logger.Debug("get user parse payload: %v", err)
	}

	raw := strings.TrimSpace(payload.Token)
	if raw == "" {
		return c.JSON(router.StatusBadRequest, APIError{
			Error: "token is required",
			Code:  TextCodeEmptyString,
		})
	}

	claims, err := a.Tokens.Validate(raw)
	if err != nil {
		if !IsError(err, ErrTokenExpired) {
			err = ErrTokenInvalid
		}
		return SendAPIError(c, err)
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return SendAPIError(c, ErrTokenInvalid)
	}

	user, err := a.Repo.Users().GetByUUID(c.Context(), id)
	if err != nil {
		if !IsError(err, ErrUserNotFound) {
			a.Logger.Error("get user %s: %v", id, err)
			err = goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user").
				WithCode(goerrors.CodeInternal)
		}
		return SendAPIError(c, err)
	}

	return c.JSON(router.StatusOK, NewUserProfile(user, a.Images))
}

// Me returns the profile of the bearer, the user is resolved by APIGuard
func (a *APIController) Me(c router.Context) error {
	user, ok := CurrentUser(c, DefaultContextKey)
	if !ok {
		return SendAPIError(c, ErrTokenInvalid)
	}
	return c.JSON(router.StatusOK, NewUserProfile(user, a.Images))
}
