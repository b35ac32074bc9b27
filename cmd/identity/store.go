package identity

import (
	"context"
	"time"
)

// User is VERSA-ID's account record.
// PasswordHash is opaque to this package; it is produced and verified by
// security/password and must never leave the server.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     string

	// WalletAddress and VersaID are set together by ConnectWallet.
	// VersaID != nil if and only if WalletAddress != nil.
	WalletAddress *string
	VersaID       *string

	CreatedAt time.Time
}

// HasWallet reports whether a wallet has been connected.
func (u User) HasWallet() bool { return u.WalletAddress != nil && u.VersaID != nil }

// CreateUserInput describes a registration. Username, Email and PasswordHash are required.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	Now          time.Time
}

// ConnectWalletInput binds a wallet address to an existing user.
type ConnectWalletInput struct {
	UserID        int64
	WalletAddress string
}

// Store is the credential persistence boundary.
//
// English comment:
//   - CreateUser enforces username/email uniqueness atomically and returns
//     ConflictError{Field: "username"|"email"} on duplicates.
//   - Lookups return NotFoundError (errors.Is(err, ErrNotFound)) when absent.
//   - GetUserByVersaID returns the lowest user id holding the identifier,
//     since several accounts may connect the same wallet.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByVersaID(ctx context.Context, versaID string) (User, error)
	ConnectWallet(ctx context.Context, in ConnectWalletInput) (User, error)
}

func validateCreateUser(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Username = NormalizeUsername(in.Username)
	in.Email = NormalizeEmail(in.Email)
	in.FullName = NormalizeUsername(in.FullName)

	switch {
	case in.Username == "":
		return in, invalid(op, "username is required")
	case in.Email == "":
		return in, invalid(op, "email is required")
	case in.PasswordHash == "":
		return in, invalid(op, "password hash is required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}

func strPtr(s string) *string { return &s }
