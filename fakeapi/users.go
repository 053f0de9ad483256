package fakeapi

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-rail-auth/authmodel"
	apperrors "github.com/jrsteele09/go-rail-auth/internal/errors"
)

// account is a registered traveller together with their pending OTP.
type account struct {
	authmodel.User
	otpHash      []byte
	otpExpiresAt time.Time
}

// userRepo stores accounts by id and email.
type userRepo interface {
	Upsert(a *account) error
	GetByEmail(email string) (*account, error)
	GetByID(id string) (*account, error)
}

var _ userRepo = (*memoryUserRepo)(nil)

type memoryUserRepo struct {
	accounts map[string]*account
	emailIDs map[string]string // email to account id
	lock     sync.RWMutex
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{
		accounts: make(map[string]*account),
		emailIDs: make(map[string]string),
	}
}

func (r *memoryUserRepo) Upsert(a *account) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	stored := *a
	r.accounts[a.ID] = &stored
	r.emailIDs[a.Email] = a.ID
	return nil
}

func (r *memoryUserRepo) GetByEmail(email string) (*account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.emailIDs[email]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	a := *r.accounts[id]
	return &a, nil
}

func (r *memoryUserRepo) GetByID(id string) (*account, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	cp := *a
	return &cp, nil
}
