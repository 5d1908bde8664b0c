package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type profileRepository struct {
	q querier
}

func (r *profileRepository) Get(ctx context.Context, userID string) (domain.Profile, error) {
	var profile domain.Profile

	err := r.q.QueryRowContext(ctx, `
		SELECT user_id, name, email, address
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&profile.UserID, &profile.Name, &profile.Email, &profile.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Profile{}, fmt.Errorf("%w: profile %s", domain.ErrNotFound, userID)
		}
		return domain.Profile{}, fmt.Errorf("select profile: %w", err)
	}

	return profile, nil
}

var _ domain.ProfileRepository = (*profileRepository)(nil)
