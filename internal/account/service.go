package account

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/storefront/internal/gateway"
	"github.com/angelmondragon/storefront/internal/session"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
)

const minPasswordLength = 8

// Gateway is the account slice of the storefront API.
type Gateway interface {
	CurrentUser(ctx context.Context, token string) (gateway.User, error)
	UpdateProfile(ctx context.Context, token string, update gateway.ProfileUpdate) (gateway.User, error)
	ChangePassword(ctx context.Context, token string, change gateway.PasswordChange) error
	ListOrders(ctx context.Context, token string) ([]gateway.Order, error)
	GetOrder(ctx context.Context, token string, id int64) (gateway.Order, error)
}

// Session is the device session as seen by account operations.
type Session interface {
	session.Current
	Refresh(ctx context.Context, user gateway.User) error
}

// Service exposes profile, password and order history for the signed-in user.
type Service interface {
	Profile(ctx context.Context, sess Session) (gateway.User, error)
	UpdateProfile(ctx context.Context, sess Session, update gateway.ProfileUpdate) (gateway.User, error)
	ChangePassword(ctx context.Context, sess Session, change gateway.PasswordChange) error
	Orders(ctx context.Context, sess Session) ([]gateway.Order, error)
	Order(ctx context.Context, sess Session, id int64) (gateway.Order, error)
}

type service struct {
	gw       Gateway
	logg     *logger.Logger
	validate *validator.Validate
}

func NewService(gw Gateway, logg *logger.Logger) (Service, error) {
	if gw == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "account gateway required")
	}
	return &service{gw: gw, logg: logg, validate: validator.New()}, nil
}

// Profile fetches the user record and stores it as the session user.
func (s *service) Profile(ctx context.Context, sess Session) (gateway.User, error) {
	token, err := requireLogin(sess)
	if err != nil {
		return gateway.User{}, err
	}
	user, err := s.gw.CurrentUser(ctx, token)
	if err != nil {
		return gateway.User{}, s.settle(ctx, sess, token, err)
	}
	s.refresh(ctx, sess, user)
	return user, nil
}

func (s *service) UpdateProfile(ctx context.Context, sess Session, update gateway.ProfileUpdate) (gateway.User, error) {
	token, err := requireLogin(sess)
	if err != nil {
		return gateway.User{}, err
	}
	if err := s.validateProfile(&update); err != nil {
		return gateway.User{}, err
	}
	user, err := s.gw.UpdateProfile(ctx, token, update)
	if err != nil {
		return gateway.User{}, s.settle(ctx, sess, token, err)
	}
	s.refresh(ctx, sess, user)
	s.logg.Info(s.logg.WithUserID(ctx, user.ID), "account.profile.updated")
	return user, nil
}

// ChangePassword enforces the local password policy before calling the API.
func (s *service) ChangePassword(ctx context.Context, sess Session, change gateway.PasswordChange) error {
	token, err := requireLogin(sess)
	if err != nil {
		return err
	}
	if err := validatePassword(change); err != nil {
		return err
	}
	if err := s.gw.ChangePassword(ctx, token, change); err != nil {
		return s.settle(ctx, sess, token, err)
	}
	s.logg.Info(s.logg.WithUserID(ctx, sess.Snapshot().Identity.UserID), "account.password.changed")
	return nil
}

func (s *service) Orders(ctx context.Context, sess Session) ([]gateway.Order, error) {
	token, err := requireLogin(sess)
	if err != nil {
		return nil, err
	}
	orders, err := s.gw.ListOrders(ctx, token)
	if err != nil {
		return nil, s.settle(ctx, sess, token, err)
	}
	return orders, nil
}

func (s *service) Order(ctx context.Context, sess Session, id int64) (gateway.Order, error) {
	token, err := requireLogin(sess)
	if err != nil {
		return gateway.Order{}, err
	}
	if id <= 0 {
		return gateway.Order{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	order, err := s.gw.GetOrder(ctx, token, id)
	if err != nil {
		return gateway.Order{}, s.settle(ctx, sess, token, err)
	}
	return order, nil
}

func (s *service) settle(ctx context.Context, sess Session, token string, err error) error {
	return session.ExpireOnReject(ctx, sess, token, err, s.logg)
}

// refresh is best-effort; the API already holds the new record.
func (s *service) refresh(ctx context.Context, sess Session, user gateway.User) {
	if err := sess.Refresh(ctx, user); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "account.session_refresh_failed")
	}
}

func (s *service) validateProfile(update *gateway.ProfileUpdate) error {
	details := map[string]string{}
	trim := func(v *string) *string {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		return &t
	}
	update.FirstName = trim(update.FirstName)
	update.LastName = trim(update.LastName)
	update.Email = trim(update.Email)
	if update.Email != nil {
		if err := s.validate.Var(*update.Email, "required,email"); err != nil {
			details["email"] = "must be a valid email"
		}
	}
	if p := update.Profile; p != nil {
		p.Phone = trim(p.Phone)
		p.DefaultAddress = trim(p.DefaultAddress)
		p.DefaultCity = trim(p.DefaultCity)
		p.PostalCode = trim(p.PostalCode)
		if p.DefaultCountry != nil {
			country := strings.ToUpper(strings.TrimSpace(*p.DefaultCountry))
			p.DefaultCountry = &country
			if country != "" {
				if err := s.validate.Var(country, "len=2,alpha"); err != nil {
					details["default_country"] = "must be a two letter country code"
				}
			}
		}
		if p.Phone != nil && len(*p.Phone) > 20 {
			details["phone"] = "is too long"
		}
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid profile").WithDetails(details)
	}
	return nil
}

func validatePassword(change gateway.PasswordChange) error {
	details := map[string]string{}
	if change.OldPassword == "" {
		details["old_password"] = "is required"
	}
	if msg := passwordPolicy(change.NewPassword); msg != "" {
		details["new_password"] = msg
	}
	if change.NewPassword != change.NewPasswordConfirm {
		details["new_password_confirm"] = "does not match"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid password change").WithDetails(details)
	}
	return nil
}

func passwordPolicy(pw string) string {
	if len([]rune(pw)) < minPasswordLength {
		return "must be at least 8 characters"
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return "must contain a letter and a digit"
	}
	return ""
}

func requireLogin(sess Session) (string, error) {
	snap := sess.Snapshot()
	if !snap.Identity.Authenticated() || snap.Token == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "login required").
			WithDetails(map[string]any{"redirect": "/login"})
	}
	return snap.Token, nil
}
