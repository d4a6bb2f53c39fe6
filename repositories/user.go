//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperrors "courier/errors"
)

type IUserRepository interface {
	CreateUser(username, email, hashedPassword string) (string, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id string) (User, error)
	ListUsers(excludeID string) ([]User, error)
	UpdateProfile(id string, username, bio *string) (User, error)
	TouchLastSeen(id string) error
}

// User is the repository-level representation of an account. The password
// hash never leaves the auth/service layer.
type User struct {
	ID           string
	Username     string
	Email        string
	Bio          string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	LastSeen     time.Time
}

// UserRepository stores accounts in BadgerDB under "uid:{id}" with a
// "uemail:{email}" pointer for login lookups. Both keys are written in the
// same transaction so a crash cannot leave a user reachable by only one.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(id string) []byte { return []byte("uid:" + id) }

func emailKey(email string) []byte { return []byte("uemail:" + strings.ToLower(email)) }

// CreateUser persists a new account and returns its generated ID. The email
// pointer doubles as the uniqueness check.
func (u *UserRepository) CreateUser(username, email, hashedPassword string) (string, error) {
	newID := uuid.NewString()
	now := time.Now().UTC()
	record := User{
		ID:           newID,
		Username:     username,
		Email:        strings.ToLower(email),
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    now,
		LastSeen:     now,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(email)); err == nil {
			return apperrors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailKey(email), []byte(newID)); err != nil {
			return err
		}
		return txn.Set(userKey(newID), data)
	})
	if err != nil {
		return "", err
	}
	return newID, nil
}

func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	var id string
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return User{}, apperrors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u.GetUserByID(id)
}

func (u *UserRepository) GetUserByID(id string) (User, error) {
	var record User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err == badger.ErrKeyNotFound {
		return User{}, apperrors.ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return record, nil
}

// ListUsers returns every account except the given one, for the contact list.
func (u *UserRepository) ListUsers(excludeID string) ([]User, error) {
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte("uid:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record User
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				if record.ID != excludeID {
					users = append(users, record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateProfile applies the provided fields only; nil means keep as is.
func (u *UserRepository) UpdateProfile(id string, username, bio *string) (User, error) {
	var updated User
	err := u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err == badger.ErrKeyNotFound {
			return apperrors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var record User
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}

		if username != nil {
			record.Username = *username
		}
		if bio != nil {
			record.Bio = *bio
		}

		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		updated = record
		return txn.Set(userKey(id), data)
	})
	if err != nil {
		return User{}, err
	}
	return updated, nil
}

// TouchLastSeen stamps the account with the current time, called on login.
func (u *UserRepository) TouchLastSeen(id string) error {
	return u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err == badger.ErrKeyNotFound {
			return apperrors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var record User
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		}); err != nil {
			return err
		}
		record.LastSeen = time.Now().UTC()
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
}
