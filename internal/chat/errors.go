package chat

import (
	"errors"

	"github.com/eldtechnologies/tarschat/internal/store"
)

var (
	// ErrUnauthenticated means the request carried no verified identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUserNotFound means the identity has no active user record yet.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotFound covers missing conversations, messages and users, and
	// conversations the caller does not participate in.
	ErrNotFound = errors.New("not found")
	// ErrNotOwner is returned when deleting someone else's message.
	ErrNotOwner = errors.New("not the owner")
	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// storeErr maps store sentinels onto the errors callers test for.
func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
