package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// profileRepository — in-memory реализация ProfileRepository.
type profileRepository struct {
	store *Store
}

func (r *profileRepository) Get(_ context.Context, userID string) (domain.Profile, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return cloneProfile(profile), nil
}

var _ domain.ProfileRepository = (*profileRepository)(nil)
