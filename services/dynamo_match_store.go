package services

import (
	"context"
	"errors"
	"fmt"

	"pulse_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Index names on the press events table.
const (
	pressByQueueEntryIndex = "by_queueEntry_status"
	pressByTargetIndex     = "by_target_status"
	pressByStatusIndex     = "by_status_startedAt"
	queueByParticipantKey  = "by_participantKey"
	sessionByMatchIndex    = "by_matchId"
)

// DynamoMatchStore implements MatchStore on DynamoDB.
type DynamoMatchStore struct {
	Dynamo *DynamoService
}

func NewDynamoMatchStore(dynamo *DynamoService) *DynamoMatchStore {
	return &DynamoMatchStore{Dynamo: dynamo}
}

func (s *DynamoMatchStore) getByID(ctx context.Context, table, keyAttr, id string, out interface{}) (bool, error) {
	item, err := s.Dynamo.GetItem(ctx, table, map[string]types.AttributeValue{
		keyAttr: StringAttr(id),
	})
	if errors.Is(err, ErrItemNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s row: %w", table, err)
	}
	return true, nil
}

func (s *DynamoMatchStore) GetQueueEntry(ctx context.Context, queueEntryID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	found, err := s.getByID(ctx, models.QueueTable, "queueEntryId", queueEntryID, &entry)
	if err != nil || !found {
		return nil, err
	}
	return &entry, nil
}

func (s *DynamoMatchStore) PutQueueEntry(ctx context.Context, entry models.QueueEntry) error {
	return s.Dynamo.PutItem(ctx, models.QueueTable, entry)
}

func (s *DynamoMatchStore) QueryQueueEntriesByParticipantKey(ctx context.Context, participantKey string) ([]models.QueueEntry, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.QueueTable, queueByParticipantKey,
		"#pk = :pk",
		map[string]types.AttributeValue{":pk": StringAttr(participantKey)},
		map[string]string{"#pk": "participantKey"},
		50,
	)
	if err != nil {
		return nil, err
	}
	var entries []models.QueueEntry
	if err := attributevalue.UnmarshalListOfMaps(items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entries: %w", err)
	}
	return entries, nil
}

func (s *DynamoMatchStore) QueryActiveQueueEntries(ctx context.Context) ([]models.QueueEntry, error) {
	// The active pool is bounded and read in full on every decision, so a
	// scan-and-filter keeps the table free of sparse-boolean index tricks.
	var entries []models.QueueEntry
	if err := s.Dynamo.ScanAll(ctx, models.QueueTable, &entries); err != nil {
		return nil, err
	}
	active := entries[:0]
	for _, entry := range entries {
		if entry.IsActive {
			active = append(active, entry)
		}
	}
	return active, nil
}

func (s *DynamoMatchStore) GetPressEvent(ctx context.Context, pressEventID string) (*models.PressEvent, error) {
	var press models.PressEvent
	found, err := s.getByID(ctx, models.PressEventsTable, "pressEventId", pressEventID, &press)
	if err != nil || !found {
		return nil, err
	}
	return &press, nil
}

func (s *DynamoMatchStore) PutPressEvent(ctx context.Context, press models.PressEvent) error {
	return s.Dynamo.PutItem(ctx, models.PressEventsTable, press)
}

func (s *DynamoMatchStore) queryPressIndex(ctx context.Context, indexName, keyAttr, keyValue string, statuses []string) ([]models.PressEvent, error) {
	var presses []models.PressEvent
	for _, status := range statuses {
		items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.PressEventsTable, indexName,
			"#pk = :pk AND #st = :st",
			map[string]types.AttributeValue{
				":pk": StringAttr(keyValue),
				":st": StringAttr(status),
			},
			map[string]string{"#pk": keyAttr, "#st": "status"},
			100,
		)
		if err != nil {
			return nil, err
		}
		var page []models.PressEvent
		if err := attributevalue.UnmarshalListOfMaps(items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal press events: %w", err)
		}
		presses = append(presses, page...)
	}
	return presses, nil
}

func (s *DynamoMatchStore) QueryPressEventsByQueueEntry(ctx context.Context, queueEntryID string, statuses []string) ([]models.PressEvent, error) {
	return s.queryPressIndex(ctx, pressByQueueEntryIndex, "queueEntryId", queueEntryID, statuses)
}

func (s *DynamoMatchStore) QueryPressEventsByTarget(ctx context.Context, targetQueueEntryID string, statuses []string) ([]models.PressEvent, error) {
	return s.queryPressIndex(ctx, pressByTargetIndex, "targetQueueEntryId", targetQueueEntryID, statuses)
}

func (s *DynamoMatchStore) QueryPressEventsByStatus(ctx context.Context, status string) ([]models.PressEvent, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.PressEventsTable, pressByStatusIndex,
		"#st = :st",
		map[string]types.AttributeValue{":st": StringAttr(status)},
		map[string]string{"#st": "status"},
		500,
	)
	if err != nil {
		return nil, err
	}
	var presses []models.PressEvent
	if err := attributevalue.UnmarshalListOfMaps(items, &presses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal press events: %w", err)
	}
	return presses, nil
}

func (s *DynamoMatchStore) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var match models.Match
	found, err := s.getByID(ctx, models.MatchesTable, "matchId", matchID, &match)
	if err != nil || !found {
		return nil, err
	}
	return &match, nil
}

func (s *DynamoMatchStore) CreateMatch(ctx context.Context, match models.Match) (*models.Match, bool, error) {
	err := s.Dynamo.PutItemIfAbsent(ctx, models.MatchesTable, "matchId", match)
	if errors.Is(err, ErrConditionFailed) {
		existing, getErr := s.GetMatch(ctx, match.MatchID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &match, true, nil
}

func (s *DynamoMatchStore) PutMatch(ctx context.Context, match models.Match) error {
	return s.Dynamo.PutItem(ctx, models.MatchesTable, match)
}

func (s *DynamoMatchStore) GetSession(ctx context.Context, sessionID string) (*models.MatchSession, error) {
	var session models.MatchSession
	found, err := s.getByID(ctx, models.MatchSessionsTable, "sessionId", sessionID, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func (s *DynamoMatchStore) GetSessionByMatch(ctx context.Context, matchID string) (*models.MatchSession, error) {
	items, err := s.Dynamo.QueryItemsWithIndex(ctx, models.MatchSessionsTable, sessionByMatchIndex,
		"#mk = :mk",
		map[string]types.AttributeValue{":mk": StringAttr(matchID)},
		map[string]string{"#mk": "matchId"},
		1,
	)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	var session models.MatchSession
	if err := attributevalue.UnmarshalMap(items[0], &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session row: %w", err)
	}
	return &session, nil
}

func (s *DynamoMatchStore) PutSession(ctx context.Context, session models.MatchSession) error {
	return s.Dynamo.PutItem(ctx, models.MatchSessionsTable, session)
}

func (s *DynamoMatchStore) QuerySessionsEndingBefore(ctx context.Context, cutoff int64) ([]models.MatchSession, error) {
	var sessions []models.MatchSession
	if err := s.Dynamo.ScanAll(ctx, models.MatchSessionsTable, &sessions); err != nil {
		return nil, err
	}
	ending := sessions[:0]
	for _, session := range sessions {
		if session.EndsAt <= cutoff {
			ending = append(ending, session)
		}
	}
	return ending, nil
}

func (s *DynamoMatchStore) PutChatMessage(ctx context.Context, message models.ChatMessage) error {
	return s.Dynamo.PutItem(ctx, models.ChatMessagesTable, message)
}

func (s *DynamoMatchStore) QueryChatMessagesBySession(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	items, err := s.Dynamo.QueryItems(ctx, models.ChatMessagesTable,
		"#sk = :sk",
		map[string]types.AttributeValue{":sk": StringAttr(sessionID)},
		map[string]string{"#sk": "sessionId"},
		int32(limit),
	)
	if err != nil {
		return nil, err
	}
	var messages []models.ChatMessage
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat messages: %w", err)
	}
	return messages, nil
}

func (s *DynamoMatchStore) QueryExpiredChatMessages(ctx context.Context, cutoff int64) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	if err := s.Dynamo.ScanAll(ctx, models.ChatMessagesTable, &messages); err != nil {
		return nil, err
	}
	expired := messages[:0]
	for _, message := range messages {
		if message.ExpiresAt <= cutoff {
			expired = append(expired, message)
		}
	}
	return expired, nil
}

func (s *DynamoMatchStore) DeleteChatMessages(ctx context.Context, messages []models.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	requests := make([]types.WriteRequest, 0, len(messages))
	for _, message := range messages {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"sessionId": StringAttr(message.SessionID),
					"messageId": StringAttr(message.MessageID),
				},
			},
		})
	}
	return s.Dynamo.BatchWriteItems(ctx, models.ChatMessagesTable, requests)
}
