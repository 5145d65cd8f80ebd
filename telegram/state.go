// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/amarnathcjd/hybridgram/internal/cache"
)

const DefaultStateTTL = 24 * time.Hour

// State is a named conversation marker with an optional payload.
type State struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Is reports whether the state is one of names. A nil state is in none.
func (s *State) Is(names ...string) bool {
	if s == nil {
		return false
	}
	return contains(names, s.Name)
}

// Decode unmarshals the payload into v.
func (s *State) Decode(v any) error {
	if s == nil || !present(s.Data) {
		return nil
	}
	return json.Unmarshal(s.Data, v)
}

// RouteStates is the snapshot of chat and user state taken before matching.
type RouteStates struct {
	Chat *State
	User *State
}

type StateStore interface {
	ChatState(ctx context.Context, chatID int64) (*State, error)
	UserState(ctx context.Context, chatID, userID int64) (*State, error)
	// SetChatState stores name with ttl (0 means the default). An empty
	// name clears the state.
	SetChatState(ctx context.Context, chatID int64, name string, ttl time.Duration, data any) error
	SetUserState(ctx context.Context, chatID, userID int64, name string, ttl time.Duration, data any) error
	ClearChatState(ctx context.Context, chatID int64) error
	ClearUserState(ctx context.Context, chatID, userID int64) error
}

// StateManager keeps states in a cache.Store under
// telegram_state_chat_{chat} and telegram_state_user_{chat}_{user}.
type StateManager struct {
	store cache.Store
	ttl   time.Duration
}

var _ StateStore = (*StateManager)(nil)

func NewStateManager(store cache.Store) *StateManager {
	return &StateManager{store: store, ttl: DefaultStateTTL}
}

// WithTTL changes the default TTL.
func (m *StateManager) WithTTL(ttl time.Duration) *StateManager {
	if ttl > 0 {
		m.ttl = ttl
	}
	return m
}

func chatStateKey(chatID int64) string { return fmt.Sprintf("telegram_state_chat_%d", chatID) }

func userStateKey(chatID, userID int64) string {
	return fmt.Sprintf("telegram_state_user_%d_%d", chatID, userID)
}

func (m *StateManager) ChatState(ctx context.Context, chatID int64) (*State, error) {
	return m.get(ctx, chatStateKey(chatID))
}

func (m *StateManager) UserState(ctx context.Context, chatID, userID int64) (*State, error) {
	return m.get(ctx, userStateKey(chatID, userID))
}

func (m *StateManager) SetChatState(ctx context.Context, chatID int64, name string, ttl time.Duration, data any) error {
	return m.set(ctx, chatStateKey(chatID), name, ttl, data)
}

func (m *StateManager) SetUserState(ctx context.Context, chatID, userID int64, name string, ttl time.Duration, data any) error {
	return m.set(ctx, userStateKey(chatID, userID), name, ttl, data)
}

func (m *StateManager) ClearChatState(ctx context.Context, chatID int64) error {
	return errors.Wrap(m.store.Delete(ctx, chatStateKey(chatID)), "clearing chat state")
}

func (m *StateManager) ClearUserState(ctx context.Context, chatID, userID int64) error {
	return errors.Wrap(m.store.Delete(ctx, userStateKey(chatID, userID)), "clearing user state")
}

func (m *StateManager) get(ctx context.Context, key string) (*State, error) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", key)
	}
	if !ok {
		return nil, nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil || s.Name == "" {
		// unreadable entries count as no state
		return nil, nil
	}
	return &s, nil
}

func (m *StateManager) set(ctx context.Context, key, name string, ttl time.Duration, data any) error {
	if name == "" {
		return errors.Wrapf(m.store.Delete(ctx, key), "clearing %s", key)
	}
	if ttl <= 0 {
		ttl = m.ttl
	}
	s := State{Name: name}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return errors.Wrap(err, "encoding state data")
		}
		s.Data = raw
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding state")
	}
	return errors.Wrapf(m.store.Set(ctx, key, raw, ttl), "writing %s", key)
}

// loadStates fetches the snapshot for u. Updates without a chat have no
// state; user state additionally needs a sender.
func loadStates(ctx context.Context, store StateStore, u *Update) (RouteStates, error) {
	var states RouteStates
	if store == nil {
		return states, nil
	}
	chat := u.EffectiveChat()
	if chat == nil {
		return states, nil
	}

	var err error
	if states.Chat, err = store.ChatState(ctx, chat.ID); err != nil {
		return states, err
	}
	if user := u.EffectiveUser(); user != nil {
		if states.User, err = store.UserState(ctx, chat.ID, user.ID); err != nil {
			return states, err
		}
	}
	return states, nil
}
