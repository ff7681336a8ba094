// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/connectors"
)

type sqliteConnector struct {
	db *gorm.DB
}

func (c *sqliteConnector) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

func (c *sqliteConnector) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newTestConnector(t *testing.T) connectors.PostgresConnector {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	connector := &sqliteConnector{db: db}
	require.NoError(t, Migrate(context.Background(), connector))
	t.Cleanup(func() { _ = connector.Close() })
	return connector
}

func testLogger() commons.Logger {
	return commons.NewApplicationLogger("repository-test", "error", "")
}

func activeConversation(t *testing.T, repo ConversationRepository, userId uint64) *internal_entity.Conversation {
	t.Helper()
	conversation := &internal_entity.Conversation{
		UserId:    userId,
		PatientId: 1,
		StartTime: time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), conversation))
	return conversation
}

func TestConversationCreateDefaults(t *testing.T) {
	repo := NewConversationRepository(newTestConnector(t), testLogger())
	conversation := activeConversation(t, repo, 1)

	assert.Equal(t, internal_entity.ConversationStatusActive, conversation.Status)
	assert.Equal(t, internal_entity.DefaultPatientLanguage, conversation.PatientLanguage)
	assert.NotZero(t, conversation.Id)
}

func TestConversationFinalizeIsOneWay(t *testing.T) {
	repo := NewConversationRepository(newTestConnector(t), testLogger())
	conversation := activeConversation(t, repo, 1)
	ctx := context.Background()

	ended, err := repo.Finalize(ctx, conversation.Id, internal_entity.ConversationStatusEnded, time.Now())
	require.NoError(t, err)
	assert.Equal(t, internal_entity.ConversationStatusEnded, ended.Status)
	require.NotNil(t, ended.EndTime)

	_, err = repo.Finalize(ctx, conversation.Id, internal_entity.ConversationStatusEndedError, time.Now())
	assert.Error(t, err, "a terminal conversation must never be finalized again")
}

func TestConversationSummarizeIsAtomic(t *testing.T) {
	connector := newTestConnector(t)
	repo := NewConversationRepository(connector, testLogger())
	summaries := NewSummaryRepository(connector, testLogger())
	conversation := activeConversation(t, repo, 1)
	ctx := context.Background()

	summarized, err := repo.Summarize(ctx, conversation.Id, "visit summary", time.Now())
	require.NoError(t, err)
	assert.Equal(t, internal_entity.ConversationStatusSummarized, summarized.Status)

	summary, err := summaries.GetByConversation(ctx, conversation.Id)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "visit summary", summary.Content)

	// Second summarize must fail and leave the stored summary untouched.
	_, err = repo.Summarize(ctx, conversation.Id, "rewritten", time.Now())
	require.Error(t, err)
	summary, err = summaries.GetByConversation(ctx, conversation.Id)
	require.NoError(t, err)
	assert.Equal(t, "visit summary", summary.Content)
}

func TestConversationListIsMostRecentFirst(t *testing.T) {
	repo := NewConversationRepository(newTestConnector(t), testLogger())
	ctx := context.Background()

	older := &internal_entity.Conversation{UserId: 1, PatientId: 1, StartTime: time.Now().Add(-time.Hour)}
	newer := &internal_entity.Conversation{UserId: 1, PatientId: 1, StartTime: time.Now()}
	foreign := &internal_entity.Conversation{UserId: 2, PatientId: 1, StartTime: time.Now()}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, foreign))

	conversations, err := repo.GetForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, newer.Id, conversations[0].Id)
	assert.Equal(t, older.Id, conversations[1].Id)
}

func TestConversationUpdatePatientLanguage(t *testing.T) {
	repo := NewConversationRepository(newTestConnector(t), testLogger())
	conversation := activeConversation(t, repo, 1)
	ctx := context.Background()

	require.NoError(t, repo.UpdatePatientLanguage(ctx, conversation.Id, "pt"))
	updated, err := repo.Get(ctx, conversation.Id)
	require.NoError(t, err)
	assert.Equal(t, "pt", updated.PatientLanguage)

	assert.Error(t, repo.UpdatePatientLanguage(ctx, 9999, "pt"))
}

func TestMessagesComeBackInOrder(t *testing.T) {
	repo := NewMessageRepository(newTestConnector(t), testLogger())
	ctx := context.Background()

	for _, body := range []string{"first", "second", "third"} {
		require.NoError(t, repo.Create(ctx, &internal_entity.Message{
			ConversationId: 1,
			SenderType:     internal_entity.SenderTypeUser,
			Language:       "en",
			OriginalText:   body,
		}))
	}

	messages, err := repo.GetByConversation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "first", messages[0].OriginalText)
	assert.Equal(t, "third", messages[2].OriginalText)
}

func TestAggregatedActionsMergeAllKinds(t *testing.T) {
	repo := NewActionRepository(newTestConnector(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.CreateNote(ctx, &internal_entity.Note{ConversationId: 1, Content: "check bp"}))
	require.NoError(t, repo.CreateFollowUp(ctx, &internal_entity.FollowUp{
		ConversationId: 1, ScheduledFor: time.Now().Add(14 * 24 * time.Hour),
	}))
	require.NoError(t, repo.CreatePrescription(ctx, &internal_entity.Prescription{
		ConversationId: 1, MedicationName: "lisinopril", Dosage: "10mg", Frequency: "daily",
	}))
	require.NoError(t, repo.CreateNote(ctx, &internal_entity.Note{ConversationId: 2, Content: "other conversation"}))

	actions, err := repo.AggregatedByConversation(ctx, 1)
	require.NoError(t, err)
	require.Len(t, actions, 3)

	kinds := map[string]bool{}
	for _, action := range actions {
		kinds[action.Type] = true
		assert.Equal(t, internal_entity.ActionStatusPending, action.Status)
		assert.Equal(t, uint64(1), action.ConversationId)
	}
	assert.True(t, kinds[internal_entity.ActionTypeNote])
	assert.True(t, kinds[internal_entity.ActionTypeFollowUp])
	assert.True(t, kinds[internal_entity.ActionTypePrescription])
}

func TestSummaryMissingIsNilNotError(t *testing.T) {
	repo := NewSummaryRepository(newTestConnector(t), testLogger())

	summary, err := repo.GetByConversation(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, summary)
}

func TestMedicalHistoryUpsertReplacesContent(t *testing.T) {
	repo := NewMedicalHistoryRepository(newTestConnector(t), testLogger())
	ctx := context.Background()

	first, err := repo.Upsert(ctx, 1, "no known allergies")
	require.NoError(t, err)
	second, err := repo.Upsert(ctx, 1, "allergic to penicillin")
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)

	stored, err := repo.GetByConversation(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "allergic to penicillin", stored.Content)
}

func TestPatientFindOrCreateNormalizesDob(t *testing.T) {
	repo := NewPatientRepository(newTestConnector(t), testLogger())
	ctx := context.Background()

	morning := time.Date(1980, 4, 2, 8, 30, 0, 0, time.UTC)
	evening := time.Date(1980, 4, 2, 22, 15, 0, 0, time.UTC)

	first, err := repo.FindOrCreate(ctx, "Ana", "Silva", morning)
	require.NoError(t, err)
	second, err := repo.FindOrCreate(ctx, "Ana", "Silva", evening)
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)

	other, err := repo.FindOrCreate(ctx, "Ana", "Silva", morning.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.NotEqual(t, first.Id, other.Id)
}

func TestUserUsernameIsUnique(t *testing.T) {
	repo := NewUserRepository(newTestConnector(t), testLogger())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &internal_entity.User{Username: "clinician", PasswordHash: "x"}))
	err := repo.Create(ctx, &internal_entity.User{Username: "clinician", PasswordHash: "y"})
	assert.Error(t, err)
}
