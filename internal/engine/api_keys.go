package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"dayplan/internal/domain"
	"dayplan/internal/reconcile"
	"dayplan/internal/repo"
)

const apiKeyPrefix = "dp_"

// CreateAPIKey mints a key for actorID. The plaintext is returned once;
// only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, name, actorID string) (domain.APIKey, string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        e.newID(),
		ActorID:   actor(actorID),
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	if key.Name == "" {
		return key, "", &reconcile.InvalidError{Op: "create api key", Reason: "name is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return key, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return key, "", err
	}
	return key, secret, tx.Commit()
}

func (e Engine) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	return e.Repo.DeleteAPIKey(ctx, id)
}
