// Package session resolves the active tenant scope: the (company,
// point-of-sale) pair every read is filtered by and every write is stamped
// with. The active session survives process restarts through a local
// key-value store under a fixed key.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionInvalid indicates no tenant scope is active. Mutators raise it
// before touching storage.
var ErrSessionInvalid = errors.New("session: no active tenant scope")

// sessionKey is the fixed key the single local session lives under.
const sessionKey = "kess:session"

// Scope identifies the tenant a record or query belongs to.
type Scope struct {
	CompanyID string `json:"companyId"`
	PosID     string `json:"posId"`
}

// Valid reports whether both scope components are set.
func (s Scope) Valid() bool {
	return s.CompanyID != "" && s.PosID != ""
}

// Session is the persisted login state.
type Session struct {
	CompanyID   string `json:"companyId"`
	PosID       string `json:"posId"`
	CompanyName string `json:"companyName"`
	PosName     string `json:"posName"`
	LoggedInAt  string `json:"loggedInAt"`
}

// Scope returns the tenant scope of the session.
func (s Session) Scope() Scope {
	return Scope{CompanyID: s.CompanyID, PosID: s.PosID}
}

// Manager persists and resolves the active session.
type Manager struct {
	client *redis.Client
	clock  func() time.Time
}

// NewManager constructs a Manager over the given key-value client.
func NewManager(client *redis.Client) *Manager {
	return &Manager{
		client: client,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Login derives deterministic tenant ids from the company and
// point-of-sale names and persists the resulting session.
func (m *Manager) Login(ctx context.Context, companyName, posName string) (Session, error) {
	companySlug := Slugify(companyName)
	posSlug := Slugify(posName)
	if companySlug == "" || posSlug == "" {
		return Session{}, fmt.Errorf("session: company and point-of-sale names required: %w", ErrSessionInvalid)
	}

	sess := Session{
		CompanyID:   "comp_" + companySlug,
		PosID:       "pos_" + posSlug,
		CompanyName: companyName,
		PosName:     posName,
		LoggedInAt:  m.clock().Format(time.RFC3339),
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return Session{}, fmt.Errorf("session: encode: %w", err)
	}
	if err := m.client.Set(ctx, sessionKey, payload, 0).Err(); err != nil {
		return Session{}, fmt.Errorf("session: persist: %w", err)
	}
	return sess, nil
}

// Logout clears the active session.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// Current returns the active session or ErrSessionInvalid.
func (m *Manager) Current(ctx context.Context) (Session, error) {
	payload, err := m.client.Get(ctx, sessionKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionInvalid
		}
		return Session{}, fmt.Errorf("session: load: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	if !sess.Scope().Valid() {
		return Session{}, ErrSessionInvalid
	}
	return sess, nil
}

// Scope resolves the active tenant scope. Callers snapshot the returned
// value once per operation and never re-read it mid-transaction, so a
// logout or tenant switch cannot corrupt attribution of in-flight writes.
func (m *Manager) Scope(ctx context.Context) (Scope, error) {
	sess, err := m.Current(ctx)
	if err != nil {
		return Scope{}, err
	}
	return sess.Scope(), nil
}
