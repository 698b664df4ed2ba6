package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SP23-BSE-106/grain/internal/domain"
)

// SessionRepository tracks live refresh credentials by jti.
type SessionRepository interface {
	Save(ctx context.Context, session domain.RefreshSession) error
	// Consume atomically removes a live session and returns it. A second
	// Consume of the same jti returns ErrSessionNotFound.
	Consume(ctx context.Context, tokenID string) (*domain.RefreshSession, error)
	Delete(ctx context.Context, tokenID string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
}

type sessionRepository struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionRepository returns a Redis-backed session store. Keys are
// namespaced under prefix.
func NewSessionRepository(client redis.UniversalClient, prefix string) SessionRepository {
	return &sessionRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *sessionRepository) sessionKey(tokenID string) string {
	return r.prefix + "session:" + tokenID
}

func (r *sessionRepository) userKey(userID string) string {
	return r.prefix + "user_sessions:" + userID
}

func (r *sessionRepository) Save(ctx context.Context, session domain.RefreshSession) error {
	if session.TokenID == "" || session.UserID == "" {
		return errors.New("session requires token id and user id")
	}
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}

	userKey := r.userKey(session.UserID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(session.TokenID), session.UserID, ttl)
		pipe.SAdd(ctx, userKey, session.TokenID)
		// Sessions share one TTL, so the newest always outlives the index entries.
		pipe.Expire(ctx, userKey, ttl)
		return nil
	})
	return err
}

func (r *sessionRepository) Consume(ctx context.Context, tokenID string) (*domain.RefreshSession, error) {
	key := r.sessionKey(tokenID)
	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	userID, err := r.client.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.client.SRem(ctx, r.userKey(userID), tokenID).Err(); err != nil {
		return nil, err
	}

	session := &domain.RefreshSession{TokenID: tokenID, UserID: userID}
	if ttl > 0 {
		session.ExpiresAt = r.now().Add(ttl)
	}
	return session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, tokenID string) error {
	_, err := r.Consume(ctx, tokenID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	return err
}

// RevokeAllForUser removes exactly the sessions listed in the index when it
// is read. A session saved concurrently keeps its index entry, so the next
// revocation still finds it.
func (r *sessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	userKey := r.userKey(userID)
	tokenIDs, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, err
	}
	if len(tokenIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tokenIDs))
	members := make([]interface{}, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		keys = append(keys, r.sessionKey(id))
		members = append(members, id)
	}

	var removed *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, userKey, members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed.Val()), nil
}
