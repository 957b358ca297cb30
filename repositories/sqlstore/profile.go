package sqlstore

import (
	"context"
	"market-chat/domain"

	"github.com/samber/lo"
	"gorm.io/gorm/clause"
)

func (s *SQLStore) PutProfile(ctx context.Context, profile domain.UserProfile) error {
	row := profileRow{
		ID:        profile.ID,
		Username:  profile.Username,
		FullName:  profile.FullName,
		AvatarURL: profile.AvatarURL,
	}
	return s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// GetProfiles skips unknown users.
func (s *SQLStore) GetProfiles(ctx context.Context, userIDs []string) (map[string]domain.UserProfile, error) {
	profiles := make(map[string]domain.UserProfile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var rows []profileRow
	if err := s.conn(ctx).Where("id IN ?", lo.Uniq(userIDs)).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		profiles[r.ID] = domain.UserProfile{
			ID:        r.ID,
			Username:  r.Username,
			FullName:  r.FullName,
			AvatarURL: r.AvatarURL,
		}
	}
	return profiles, nil
}
