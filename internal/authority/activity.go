package authority

import "context"

// ListActivity returns the newest entries of an application. A non-positive
// limit means 100; limits are capped at 1000.
func (s *Service) ListActivity(ctx context.Context, appID string, limit int) ([]*ActivityLog, error) {
	return s.store.Activity(ctx).List(ctx, appID, clampLimit(limit))
}

// ListUserActivity returns the newest entries concerning one account.
func (s *Service) ListUserActivity(ctx context.Context, appID, userID string, limit int) ([]*ActivityLog, error) {
	return s.store.Activity(ctx).ListByUser(ctx, appID, userID, clampLimit(limit))
}
