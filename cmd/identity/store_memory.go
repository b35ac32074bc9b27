package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is a process-local Store. All methods are safe for concurrent use;
// every call runs under a single lock, so uniqueness checks are atomic with inserts.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64

	byID       map[int64]*User
	byUsername map[string]int64
	byEmail    map[string]int64
	// byVersaID keeps ids in ascending order; index 0 answers lookups.
	byVersaID map[string][]int64
}

// NewMemoryStore returns an empty store. The first user gets id 1.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		byID:       make(map[int64]*User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
		byVersaID:  make(map[string][]int64),
	}
}

var _ Store = (*MemoryStore)(nil)

// CreateUser inserts a new user with the next monotonic id.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := validateCreateUser(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[in.Username]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	if _, ok := s.byEmail[in.Email]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	u := &User{
		ID:           s.nextID,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		FullName:     in.FullName,
		CreatedAt:    in.Now,
	}
	s.nextID++

	s.byID[u.ID] = u
	s.byUsername[u.Username] = u.ID
	s.byEmail[u.Email] = u.ID

	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, notFound("identity.GetUserByID", "user")
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return s.lookup(ctx, "identity.GetUserByUsername", s.byUsername, NormalizeUsername(username))
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return s.lookup(ctx, "identity.GetUserByEmail", s.byEmail, NormalizeEmail(email))
}

func (s *MemoryStore) GetUserByVersaID(ctx context.Context, versaID string) (User, error) {
	const op = "identity.GetUserByVersaID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	versaID = NormalizeVersaID(versaID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byVersaID[versaID]
	if len(ids) == 0 {
		return User{}, notFound(op, "versa_id")
	}
	return cloneUser(s.byID[ids[0]]), nil
}

// ConnectWallet derives the VERSA-ID and sets both wallet fields in one step.
// Reconnecting a different wallet moves the user to the new identifier's index.
func (s *MemoryStore) ConnectWallet(ctx context.Context, in ConnectWalletInput) (User, error) {
	const op = "identity.ConnectWallet"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	addr := strings.TrimSpace(in.WalletAddress)
	if addr == "" {
		return User{}, invalid(op, "wallet address is required")
	}
	versaID, err := DeriveVersaID(addr)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[in.UserID]
	if !ok {
		return User{}, notFound(op, "user")
	}

	if u.VersaID != nil && *u.VersaID != versaID {
		s.unindexVersaID(*u.VersaID, u.ID)
	}
	if u.VersaID == nil || *u.VersaID != versaID {
		s.indexVersaID(versaID, u.ID)
	}

	u.WalletAddress = strPtr(addr)
	u.VersaID = strPtr(versaID)

	return cloneUser(u), nil
}

func (s *MemoryStore) lookup(ctx context.Context, op string, index map[string]int64, key string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := index[key]
	if !ok {
		return User{}, notFound(op, "user")
	}
	return cloneUser(s.byID[id]), nil
}

// indexVersaID inserts id keeping the slice sorted ascending.
func (s *MemoryStore) indexVersaID(versaID string, id int64) {
	ids := s.byVersaID[versaID]
	i := 0
	for i < len(ids) && ids[i] < id {
		i++
	}
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	s.byVersaID[versaID] = ids
}

func (s *MemoryStore) unindexVersaID(versaID string, id int64) {
	ids := s.byVersaID[versaID]
	for i, v := range ids {
		if v == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byVersaID, versaID)
		return
	}
	s.byVersaID[versaID] = ids
}

func cloneUser(u *User) User {
	out := *u
	if u.WalletAddress != nil {
		out.WalletAddress = strPtr(*u.WalletAddress)
	}
	if u.VersaID != nil {
		out.VersaID = strPtr(*u.VersaID)
	}
	return out
}
