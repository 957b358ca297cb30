package repositories

import (
	"context"
	stderrors "errors"
	"market-chat/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

func (s *BadgerStore) PutProfile(ctx context.Context, profile domain.UserProfile) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(profile.ID), encodeProfile(profile))
	})
}

// GetProfiles skips unknown users.
func (s *BadgerStore) GetProfiles(ctx context.Context, userIDs []string) (map[string]domain.UserProfile, error) {
	profiles := make(map[string]domain.UserProfile, len(userIDs))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range lo.Uniq(userIDs) {
			item, err := txn.Get(profileKey(id))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				profile, err := decodeProfile(val)
				if err != nil {
					return err
				}
				profiles[id] = profile
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return profiles, err
}
