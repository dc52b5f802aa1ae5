package fakeapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	errUserExists         = errors.New("user already exists")
	errInvalidCredentials = errors.New("invalid email or password")
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DateJoined   time.Time `json:"date_joined"`
	LastLogin    time.Time `json:"last_login,omitempty"`
	OTPRequired  bool      `json:"otp_required,omitempty"` // login needs a second step through /auth/otp/verify
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

type userRepo struct {
	byEmail  map[string]*User
	hashCost int
	lock     sync.RWMutex
}

func newUserRepo(hashCost int) *userRepo {
	return &userRepo{
		byEmail:  make(map[string]*User),
		hashCost: hashCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (ur *userRepo) Create(email, password string, otpRequired bool, now time.Time) (*User, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), ur.hashCost)
	if err != nil {
		return nil, fmt.Errorf("userRepo.Create hash: %w", err)
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()
	if _, ok := ur.byEmail[email]; ok {
		return nil, errUserExists
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DateJoined:   now,
		OTPRequired:  otpRequired,
	}
	ur.byEmail[email] = u
	return u, nil
}

// Authenticate returns the user when the password matches.
func (ur *userRepo) Authenticate(email, password string) (*User, error) {
	u, ok := ur.GetByEmail(email)
	if !ok {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	return u, nil
}

func (ur *userRepo) GetByEmail(email string) (*User, bool) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	u, ok := ur.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (ur *userRepo) GetByID(id string) (*User, bool) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	for _, u := range ur.byEmail {
		if u.ID == id {
			cp := *u
			return &cp, true
		}
	}
	return nil, false
}

func (ur *userRepo) SetLastLogin(email string, at time.Time) {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if u, ok := ur.byEmail[normalizeEmail(email)]; ok {
		u.LastLogin = at
	}
}
