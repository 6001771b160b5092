package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"studyhub/backend/internal/model"
)

// RoomAuthorizer answers whether a user may control a room's timer: the room
// creator, moderators and admins may. Decisions are cached briefly.
type RoomAuthorizer struct {
	rooms RoomStore
	users UserStore
	cache *gocache.Cache
}

func NewRoomAuthorizer(rooms RoomStore, users UserStore, ttl time.Duration) *RoomAuthorizer {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RoomAuthorizer{
		rooms: rooms,
		users: users,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func decisionKey(roomID, userID string) string {
	return roomID + "|" + userID
}

// CanControlTimer returns repository.ErrNotFound when the room does not exist.
func (a *RoomAuthorizer) CanControlTimer(ctx context.Context, roomID, userID string) (bool, error) {
	key := decisionKey(roomID, userID)
	if cached, ok := a.cache.Get(key); ok {
		if allowed, ok := cached.(bool); ok {
			return allowed, nil
		}
	}

	room, err := a.rooms.GetByID(ctx, roomID)
	if err != nil {
		return false, err
	}

	allowed := room.CreatorID == userID
	if !allowed {
		user, err := a.users.GetByID(ctx, userID)
		if err != nil {
			return false, fmt.Errorf("load user %s: %w", userID, err)
		}
		allowed = user.CanModerate()
	}

	a.cache.SetDefault(key, allowed)
	return allowed, nil
}

func (a *RoomAuthorizer) IsAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user.Role == model.RoleAdmin, nil
}

func (a *RoomAuthorizer) Forget(roomID string) {
	prefix := roomID + "|"
	for key := range a.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			a.cache.Delete(key)
		}
	}
}
