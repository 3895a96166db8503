package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"pulse_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jonboulle/clockwork"
)

// UserProfileService manages the durable profile record behind a queue
// participant: display name, bio, avatar, photo keys.
type UserProfileService struct {
	Dynamo *DynamoService
	Clock  clockwork.Clock
}

// UpsertProfile creates or updates a profile. Usernames are stored trimmed;
// CreatedAt is preserved across updates.
func (s *UserProfileService) UpsertProfile(ctx context.Context, profile models.UserProfile) (*models.UserProfile, error) {
	now := s.Clock.Now().UnixMilli()
	profile.Username = strings.TrimSpace(profile.Username)
	profile.UpdatedAt = now

	existing, err := s.GetProfile(ctx, profile.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}

	if err := s.Dynamo.PutItem(ctx, models.UserProfilesTable, profile); err != nil {
		return nil, fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	log.Printf("✅ Profile saved for user %s", profile.UserID)
	return &profile, nil
}

// GetProfile fetches a profile by user id, nil when it does not exist.
func (s *UserProfileService) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	item, err := s.Dynamo.GetItem(ctx, models.UserProfilesTable, map[string]types.AttributeValue{
		"userId": StringAttr(userID),
	})
	if err != nil {
		if err == ErrItemNotFound {
			return nil, nil
		}
		return nil, err
	}
	var profile models.UserProfile
	if err := attributevalue.UnmarshalMap(item, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// DeleteProfile removes a profile. Idempotent.
func (s *UserProfileService) DeleteProfile(ctx context.Context, userID string) error {
	return s.Dynamo.DeleteItem(ctx, models.UserProfilesTable, map[string]types.AttributeValue{
		"userId": StringAttr(userID),
	})
}
