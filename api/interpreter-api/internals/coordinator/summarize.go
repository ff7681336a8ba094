// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
)

// EndAndSummarize closes a conversation and produces its summary: it gathers
// the transcript and recorded actions, asks the model for a summary, and
// commits summary plus terminal status atomically. Model failure ends the
// conversation with status ended_error; an empty conversation just ends.
func (c *conversationCoordinator) EndAndSummarize(ctx context.Context, userId, conversationId uint64) (*internal_entity.Conversation, *string, error) {
	conversation, err := c.conversations.Get(ctx, conversationId)
	if err != nil {
		return nil, nil, err
	}
	if conversation.UserId != userId {
		return nil, nil, fmt.Errorf("conversation %d does not belong to user %d", conversationId, userId)
	}
	if conversation.IsTerminal() {
		return nil, nil, fmt.Errorf("conversation %d is already %s", conversationId, conversation.Status)
	}

	var (
		messages      []*internal_entity.Message
		notes         []*internal_entity.Note
		prescriptions []*internal_entity.Prescription
		followUps     []*internal_entity.FollowUp
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		messages, err = c.messages.GetByConversation(groupCtx, conversationId)
		return err
	})
	group.Go(func() error {
		var err error
		notes, err = c.actions.NotesByConversation(groupCtx, conversationId)
		return err
	})
	group.Go(func() error {
		var err error
		prescriptions, err = c.actions.PrescriptionsByConversation(groupCtx, conversationId)
		return err
	})
	group.Go(func() error {
		var err error
		followUps, err = c.actions.FollowUpsByConversation(groupCtx, conversationId)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to gather conversation context: %w", err)
	}

	endTime := time.Now()

	if len(messages) == 0 && len(notes) == 0 && len(prescriptions) == 0 && len(followUps) == 0 {
		ended, err := c.conversations.Finalize(ctx, conversationId, internal_entity.ConversationStatusEnded, endTime)
		if err != nil {
			return nil, nil, err
		}
		c.teardown(conversationId)
		return ended, nil, nil
	}

	transcriptContext := formatSummaryContext(messages, notes, prescriptions, followUps)
	summary, err := c.intelligence.Summarize(ctx, transcriptContext)
	if err != nil {
		c.logger.Errorf("coordinator: summarization failed for conversation %d: %v", conversationId, err)
		ended, finalizeErr := c.conversations.Finalize(ctx, conversationId,
			internal_entity.ConversationStatusEndedError, endTime)
		if finalizeErr != nil {
			return nil, nil, finalizeErr
		}
		c.teardown(conversationId)
		return ended, nil, nil
	}

	summarized, err := c.conversations.Summarize(ctx, conversationId, summary, endTime)
	if err != nil {
		return nil, nil, err
	}

	// The conversation is terminal now; release its upstream session and
	// decoder so stray audio has nowhere to go.
	c.teardown(conversationId)

	c.hub.BroadcastMessage(conversationId, internal_hub.NewEvent(internal_hub.EventSummaryData,
		&internal_hub.SummaryDataPayload{
			ConversationId: conversationId,
			Summary:        &summary,
		}))
	return summarized, &summary, nil
}

// formatSummaryContext renders the transcript and the recorded actions into
// the prompt context for summarization.
func formatSummaryContext(
	messages []*internal_entity.Message,
	notes []*internal_entity.Note,
	prescriptions []*internal_entity.Prescription,
	followUps []*internal_entity.FollowUp,
) string {
	var b strings.Builder

	for _, m := range messages {
		body := m.OriginalText
		prefix := fmt.Sprintf("%s (%s)", m.SenderType, m.Language)
		if m.SenderType == internal_entity.SenderTypeTranslation {
			if m.TranslatedText != nil {
				body = *m.TranslatedText
			}
			if m.OriginalMessageId != nil {
				prefix = fmt.Sprintf("%s of message %d (%s)", m.SenderType, *m.OriginalMessageId, m.Language)
			}
		}
		fmt.Fprintf(&b, "%s: %s\n", prefix, body)
	}

	if len(notes) > 0 || len(prescriptions) > 0 || len(followUps) > 0 {
		b.WriteString("\n--- Recorded Actions ---\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "note: %s\n", n.Content)
		}
		for _, p := range prescriptions {
			fmt.Fprintf(&b, "prescription: %s %s %s", p.MedicationName, p.Dosage, p.Frequency)
			if p.Details != "" {
				fmt.Fprintf(&b, " (%s)", p.Details)
			}
			b.WriteString("\n")
		}
		for _, f := range followUps {
			fmt.Fprintf(&b, "follow-up: %s", f.ScheduledFor.Format("2006-01-02"))
			if f.Details != "" {
				fmt.Fprintf(&b, " (%s)", f.Details)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
