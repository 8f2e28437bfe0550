package vote

import (
	"context"
	"errors"

	"kaizen-votes/internal/model"

	"gorm.io/gorm"
)

// ListPending returns up to PendingPageSize unclaimed votes of the server,
// oldest first, optionally for one player uuid. Reading never consumes a
// vote; only Claim does.
func (s *Service) ListPending(ctx context.Context, callerServerID, serverID uint, playerUUID string) ([]model.Vote, error) {
	q, err := s.pendingQuery(ctx, callerServerID, serverID)
	if err != nil {
		return nil, err
	}
	if playerUUID != "" {
		id, err := normalizeUUID(playerUUID)
		if err != nil {
			return nil, err
		}
		q = q.Where("minecraft_uuid = ?", id)
	}
	var votes []model.Vote
	err = q.Limit(PendingPageSize).Find(&votes).Error
	return votes, err
}

// ListAllPending returns every unclaimed vote of the server, oldest first.
func (s *Service) ListAllPending(ctx context.Context, callerServerID, serverID uint) ([]model.Vote, error) {
	q, err := s.pendingQuery(ctx, callerServerID, serverID)
	if err != nil {
		return nil, err
	}
	var votes []model.Vote
	err = q.Find(&votes).Error
	return votes, err
}

func (s *Service) pendingQuery(ctx context.Context, callerServerID, serverID uint) (*gorm.DB, error) {
	if callerServerID != serverID {
		return nil, ErrUnauthorized
	}
	db := s.db.WithContext(ctx)
	var server model.Server
	if err := db.Select("id").First(&server, serverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, err
	}
	return db.Where("server_id = ? AND claimed = ?", serverID, false).
		Order("created_at asc, id asc"), nil
}
