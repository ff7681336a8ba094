// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internal_entity "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/entity"
	internal_hub "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/hub"
	internal_intelligence "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/intelligence"
	internal_stt "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/stt"
	internal_transcoder "github.com/rapidaai/interpreter-api/api/interpreter-api/internals/transcoder"
	"github.com/rapidaai/interpreter-api/config"
	"github.com/rapidaai/interpreter-api/pkg/commons"
	"github.com/rapidaai/interpreter-api/pkg/configs"
)

// ---- fakes ----

type fakeSession struct {
	mu       sync.Mutex
	appended [][]byte
	commits  int
	closed   bool
	cb       internal_stt.Callbacks
}

func (f *fakeSession) AppendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, pcm)
	return nil
}

func (f *fakeSession) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) appendedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appended)
}

func (f *fakeSession) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

type fakeTranscoder struct {
	mu        sync.Mutex
	written   [][]byte
	finalized bool
	stopped   bool
	cb        internal_transcoder.Callbacks
}

func (f *fakeTranscoder) Write(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalized || f.stopped {
		return fmt.Errorf("transcoder is closed")
	}
	f.written = append(f.written, chunk)
	return nil
}

func (f *fakeTranscoder) Finalize() error {
	f.mu.Lock()
	f.finalized = true
	f.mu.Unlock()
	if f.cb.OnFinished != nil {
		f.cb.OnFinished()
	}
	return nil
}

func (f *fakeTranscoder) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

type fakePipeline struct {
	mu          sync.Mutex
	transcripts []string
}

func (f *fakePipeline) ProcessTranscript(ctx context.Context, conversationId uint64, transcript string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, transcript)
}

func (f *fakePipeline) processed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transcripts...)
}

type recordingHub struct {
	mu      sync.Mutex
	clients int
	events  []*internal_hub.Event
}

func (h *recordingHub) RegisterClient(client internal_hub.Client, conversationId uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients++
}

func (h *recordingHub) RemoveClient(client internal_hub.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients > 0 {
		h.clients--
	}
}

func (h *recordingHub) ClientCount(conversationId uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

func (h *recordingHub) NotifyActionCreated(conversationId uint64, action *internal_entity.AggregatedAction) {
}

func (h *recordingHub) BroadcastMessage(conversationId uint64, event *internal_hub.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeIntelligence struct {
	summary    string
	summaryErr error
	history    string
	historyErr error
}

func (f *fakeIntelligence) DetectLanguage(ctx context.Context, text string) (string, error) {
	return "en", nil
}

func (f *fakeIntelligence) Translate(ctx context.Context, text, source, target string) (string, error) {
	return "", nil
}

func (f *fakeIntelligence) DetectCommand(ctx context.Context, text string) (*internal_intelligence.CommandInvocation, error) {
	return nil, nil
}

func (f *fakeIntelligence) Summarize(ctx context.Context, transcriptContext string) (string, error) {
	return f.summary, f.summaryErr
}

func (f *fakeIntelligence) GenerateMedicalHistory(ctx context.Context, firstName, lastName, dob string) (string, error) {
	return f.history, f.historyErr
}

type memoryStore struct {
	mu            sync.Mutex
	nextId        uint64
	patients      []*internal_entity.Patient
	conversations map[uint64]*internal_entity.Conversation
	messages      map[uint64][]*internal_entity.Message
	notes         map[uint64][]*internal_entity.Note
	prescriptions map[uint64][]*internal_entity.Prescription
	followUps     map[uint64][]*internal_entity.FollowUp
	summaries     map[uint64]*internal_entity.Summary
	histories     map[uint64]*internal_entity.MedicalHistory
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		conversations: map[uint64]*internal_entity.Conversation{},
		messages:      map[uint64][]*internal_entity.Message{},
		notes:         map[uint64][]*internal_entity.Note{},
		prescriptions: map[uint64][]*internal_entity.Prescription{},
		followUps:     map[uint64][]*internal_entity.FollowUp{},
		summaries:     map[uint64]*internal_entity.Summary{},
		histories:     map[uint64]*internal_entity.MedicalHistory{},
	}
}

func (m *memoryStore) id() uint64 {
	m.nextId++
	return m.nextId
}

// PatientRepository

func (m *memoryStore) FindOrCreate(ctx context.Context, firstName, lastName string, dob time.Time) (*internal_entity.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.FirstName == firstName && p.LastName == lastName {
			return p, nil
		}
	}
	p := &internal_entity.Patient{Id: m.id(), FirstName: firstName, LastName: lastName, DateOfBirth: dob}
	m.patients = append(m.patients, p)
	return p, nil
}

func (m *memoryStore) Get(ctx context.Context, patientId uint64) (*internal_entity.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.Id == patientId {
			return p, nil
		}
	}
	return nil, fmt.Errorf("patient not found: %d", patientId)
}

type conversationStore struct{ *memoryStore }

func (m conversationStore) Create(ctx context.Context, c *internal_entity.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Id = m.id()
	if c.Status == "" {
		c.Status = internal_entity.ConversationStatusActive
	}
	if c.PatientLanguage == "" {
		c.PatientLanguage = internal_entity.DefaultPatientLanguage
	}
	m.conversations[c.Id] = c
	return nil
}

func (m conversationStore) Get(ctx context.Context, conversationId uint64) (*internal_entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationId]
	if !ok {
		return nil, fmt.Errorf("conversation not found: %d", conversationId)
	}
	copied := *c
	return &copied, nil
}

func (m conversationStore) GetForUser(ctx context.Context, userId uint64) ([]*internal_entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*internal_entity.Conversation
	for _, c := range m.conversations {
		if c.UserId == userId {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m conversationStore) UpdatePatientLanguage(ctx context.Context, conversationId uint64, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationId]
	if !ok {
		return fmt.Errorf("conversation not found: %d", conversationId)
	}
	c.PatientLanguage = language
	return nil
}

func (m conversationStore) Finalize(ctx context.Context, conversationId uint64, status string, endTime time.Time) (*internal_entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationId]
	if !ok || c.Status != internal_entity.ConversationStatusActive {
		return nil, fmt.Errorf("conversation %d not found or not active", conversationId)
	}
	c.Status = status
	c.EndTime = &endTime
	copied := *c
	return &copied, nil
}

func (m conversationStore) Summarize(ctx context.Context, conversationId uint64, content string, endTime time.Time) (*internal_entity.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationId]
	if !ok || c.Status != internal_entity.ConversationStatusActive {
		return nil, fmt.Errorf("conversation %d not found or not active", conversationId)
	}
	m.summaries[conversationId] = &internal_entity.Summary{
		Id:             m.id(),
		ConversationId: conversationId,
		Content:        content,
	}
	c.Status = internal_entity.ConversationStatusSummarized
	c.EndTime = &endTime
	copied := *c
	return &copied, nil
}

type messageStore struct{ *memoryStore }

func (m messageStore) Create(ctx context.Context, msg *internal_entity.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.Id = m.id()
	m.messages[msg.ConversationId] = append(m.messages[msg.ConversationId], msg)
	return nil
}

func (m messageStore) GetByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[conversationId], nil
}

type actionStore struct{ *memoryStore }

func (m actionStore) CreateNote(ctx context.Context, n *internal_entity.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.Id = m.id()
	m.notes[n.ConversationId] = append(m.notes[n.ConversationId], n)
	return nil
}

func (m actionStore) CreateFollowUp(ctx context.Context, f *internal_entity.FollowUp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.Id = m.id()
	m.followUps[f.ConversationId] = append(m.followUps[f.ConversationId], f)
	return nil
}

func (m actionStore) CreatePrescription(ctx context.Context, p *internal_entity.Prescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Id = m.id()
	m.prescriptions[p.ConversationId] = append(m.prescriptions[p.ConversationId], p)
	return nil
}

func (m actionStore) NotesByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notes[conversationId], nil
}

func (m actionStore) FollowUpsByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.FollowUp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.followUps[conversationId], nil
}

func (m actionStore) PrescriptionsByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.Prescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prescriptions[conversationId], nil
}

func (m actionStore) AggregatedByConversation(ctx context.Context, conversationId uint64) ([]*internal_entity.AggregatedAction, error) {
	return nil, nil
}

type summaryStore struct{ *memoryStore }

func (m summaryStore) GetByConversation(ctx context.Context, conversationId uint64) (*internal_entity.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summaries[conversationId], nil
}

type historyStore struct{ *memoryStore }

func (m historyStore) Upsert(ctx context.Context, conversationId uint64, content string) (*internal_entity.MedicalHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := &internal_entity.MedicalHistory{Id: m.id(), ConversationId: conversationId, Content: content}
	m.histories[conversationId] = h
	return h, nil
}

func (m historyStore) GetByConversation(ctx context.Context, conversationId uint64) (*internal_entity.MedicalHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.histories[conversationId], nil
}

// ---- fixture ----

type fixture struct {
	coordinator *conversationCoordinator
	store       *memoryStore
	hub         *recordingHub
	pipeline    *fakePipeline
	ai          *fakeIntelligence

	factoryMu   sync.Mutex
	sessions    []*fakeSession
	transcoders []*fakeTranscoder
	dialErrs    []error
	delays      []time.Duration
	pending     []func()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemoryStore()
	f := &fixture{
		store:    store,
		hub:      &recordingHub{},
		pipeline: &fakePipeline{},
		ai:       &fakeIntelligence{summary: "visit summary", history: "no known allergies"},
	}

	cfg := &config.AppConfig{
		OpenAIConfig: configs.OpenAIConfig{ApiKey: "sk-test", TranscribeModel: "gpt-4o-transcribe"},
	}
	c := &conversationCoordinator{
		cfg:           cfg,
		logger:        commons.NewApplicationLogger("coordinator-test", "error", ""),
		hub:           f.hub,
		pipeline:      f.pipeline,
		intelligence:  f.ai,
		patients:      store,
		conversations: conversationStore{store},
		messages:      messageStore{store},
		actions:       actionStore{store},
		summaries:     summaryStore{store},
		histories:     historyStore{store},
		states:        map[uint64]*conversationState{},
	}
	c.newSession = func(cb internal_stt.Callbacks) (internal_stt.Session, error) {
		f.factoryMu.Lock()
		defer f.factoryMu.Unlock()
		if len(f.dialErrs) > 0 {
			err := f.dialErrs[0]
			f.dialErrs = f.dialErrs[1:]
			if err != nil {
				return nil, err
			}
		}
		s := &fakeSession{cb: cb}
		f.sessions = append(f.sessions, s)
		return s, nil
	}
	c.newTranscoder = func(cb internal_transcoder.Callbacks) (internal_transcoder.Transcoder, error) {
		f.factoryMu.Lock()
		defer f.factoryMu.Unlock()
		tr := &fakeTranscoder{cb: cb}
		f.transcoders = append(f.transcoders, tr)
		return tr, nil
	}
	// Capture reconnect timers; tests fire them explicitly.
	c.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		f.factoryMu.Lock()
		defer f.factoryMu.Unlock()
		f.delays = append(f.delays, d)
		f.pending = append(f.pending, fn)
		return time.NewTimer(time.Hour)
	}
	f.coordinator = c
	return f
}

func (f *fixture) firePending(t *testing.T) {
	f.factoryMu.Lock()
	require.NotEmpty(t, f.pending)
	fn := f.pending[len(f.pending)-1]
	f.pending = f.pending[:len(f.pending)-1]
	f.factoryMu.Unlock()
	fn()
}

func (f *fixture) lastSession(t *testing.T) *fakeSession {
	f.factoryMu.Lock()
	defer f.factoryMu.Unlock()
	require.NotEmpty(t, f.sessions)
	return f.sessions[len(f.sessions)-1]
}

func (f *fixture) lastTranscoder(t *testing.T) *fakeTranscoder {
	f.factoryMu.Lock()
	defer f.factoryMu.Unlock()
	require.NotEmpty(t, f.transcoders)
	return f.transcoders[len(f.transcoders)-1]
}

func (f *fixture) recordedDelays() []time.Duration {
	f.factoryMu.Lock()
	defer f.factoryMu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

func (f *fixture) newConversation(t *testing.T, userId uint64) uint64 {
	t.Helper()
	start, err := f.coordinator.StartSession(context.Background(), userId, "Maria", "Lopez",
		time.Date(1984, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return start.ConversationId
}

// ---- tests ----

func TestStartSessionCreatesConversationAndHistory(t *testing.T) {
	f := newFixture(t)

	start, err := f.coordinator.StartSession(context.Background(), 1, "Maria", "Lopez",
		time.Date(1984, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotZero(t, start.ConversationId)
	assert.NotZero(t, start.PatientId)

	conversation, err := f.coordinator.conversations.Get(context.Background(), start.ConversationId)
	require.NoError(t, err)
	assert.Equal(t, internal_entity.ConversationStatusActive, conversation.Status)
	assert.Equal(t, internal_entity.DefaultPatientLanguage, conversation.PatientLanguage)

	// Medical history generation is asynchronous.
	require.Eventually(t, func() bool {
		h, _ := historyStore{f.store}.GetByConversation(context.Background(), start.ConversationId)
		return h != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, f.hub.types(), internal_hub.EventMedicalHistoryData)
}

func TestSelectConversationVerifiesOwnership(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)

	_, err := f.coordinator.SelectConversation(context.Background(), nil, 99, conversationId)
	assert.Error(t, err)

	selection, err := f.coordinator.SelectConversation(context.Background(), nil, 1, conversationId)
	require.NoError(t, err)
	assert.True(t, selection.IsActive)
	assert.Nil(t, selection.Summary)
	assert.Equal(t, "es", selection.PatientLanguage)
}

func TestEnsureUpstreamConnectsOnce(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)

	status := f.coordinator.EnsureUpstream(conversationId)
	assert.Equal(t, StatusConnected, status)
	assert.Contains(t, f.hub.types(), internal_hub.EventOpenAIConnected)

	// Second call reuses the live session.
	f.coordinator.EnsureUpstream(conversationId)
	f.factoryMu.Lock()
	assert.Len(t, f.sessions, 1)
	f.factoryMu.Unlock()
}

func TestAudioFlowsThroughTranscoderToSession(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)

	require.NoError(t, f.coordinator.AppendAudio(conversationId, []byte("webm-chunk")))
	tr := f.lastTranscoder(t)
	tr.cb.OnData([]byte("pcm-1"))
	tr.cb.OnData([]byte("pcm-2"))

	assert.Equal(t, 2, f.lastSession(t).appendedCount())
}

func TestPauseDropsPCMWithoutBuffering(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	tr := f.lastTranscoder(t)

	f.coordinator.Pause(conversationId)
	tr.cb.OnData([]byte("pcm-while-paused"))
	assert.Equal(t, 0, f.lastSession(t).appendedCount())

	f.coordinator.Resume(conversationId)
	tr.cb.OnData([]byte("pcm-after-resume"))
	assert.Equal(t, 1, f.lastSession(t).appendedCount())
}

func TestCommitHappensExactlyOncePerFinalize(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)
	tr := f.lastTranscoder(t)

	require.NoError(t, f.coordinator.FinalizeAudio(conversationId))
	// A duplicate finished signal from the decoder must not double-commit.
	tr.cb.OnFinished()

	assert.Equal(t, 1, session.commitCount())
}

func TestAudioStreamsResumeAfterFinalize(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)

	require.NoError(t, f.coordinator.AppendAudio(conversationId, []byte("chunk-1")))
	require.NoError(t, f.coordinator.FinalizeAudio(conversationId))
	assert.Equal(t, 1, session.commitCount())

	// The next client stream gets a fresh decoder and its own commit.
	require.NoError(t, f.coordinator.AppendAudio(conversationId, []byte("chunk-2")))
	require.NoError(t, f.coordinator.FinalizeAudio(conversationId))

	assert.Equal(t, 2, session.commitCount())
	f.factoryMu.Lock()
	assert.Len(t, f.transcoders, 2)
	f.factoryMu.Unlock()
}

func TestRepeatedUpstreamErrorsForceReconnect(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 1
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)

	upstreamErr := fmt.Errorf("upstream transcription error: server_error: internal")
	session.cb.OnError(upstreamErr)
	session.cb.OnError(upstreamErr)
	assert.Empty(t, f.recordedDelays())

	session.cb.OnError(upstreamErr)
	assert.Equal(t, []time.Duration{2 * time.Second}, f.recordedDelays())
	assert.True(t, session.closed)

	f.firePending(t)
	f.factoryMu.Lock()
	sessionCount := len(f.sessions)
	f.factoryMu.Unlock()
	assert.Equal(t, 2, sessionCount)
}

func TestTranscriptResetsUpstreamErrorCount(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 1
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)

	upstreamErr := fmt.Errorf("upstream transcription error: server_error: internal")
	session.cb.OnError(upstreamErr)
	session.cb.OnError(upstreamErr)
	session.cb.OnTranscript("still healthy")
	session.cb.OnError(upstreamErr)
	session.cb.OnError(upstreamErr)

	assert.Empty(t, f.recordedDelays())
	assert.False(t, session.closed)
}

func TestReconnectBackoffProgression(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 1
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)

	// Upstream drops abnormally three times in a row.
	session.cb.OnClose(1011, "server restart")
	f.firePending(t)
	f.lastSession(t).cb.OnClose(1011, "server restart")
	f.firePending(t)
	f.lastSession(t).cb.OnClose(1011, "server restart")

	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, f.recordedDelays())
	assert.Contains(t, f.hub.types(), internal_hub.EventError)
}

func TestSuccessfulReconnectResetsAttempts(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 1
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)

	f.lastSession(t).cb.OnClose(1011, "gone")
	f.firePending(t)

	// Connected again; the next failure starts over at 2s.
	f.lastSession(t).cb.OnClose(1006, "gone again")
	delays := f.recordedDelays()
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, delays)
}

func TestNoReconnectWithoutClients(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 0
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)

	f.lastSession(t).cb.OnClose(1011, "server restart")
	f.firePending(t)

	f.factoryMu.Lock()
	sessionCount := len(f.sessions)
	f.factoryMu.Unlock()
	assert.Equal(t, 1, sessionCount)

	// State was torn down entirely.
	f.coordinator.mu.Lock()
	_, exists := f.coordinator.states[conversationId]
	f.coordinator.mu.Unlock()
	assert.False(t, exists)
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 1
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)

	f.lastSession(t).cb.OnClose(1000, "")

	assert.Empty(t, f.recordedDelays())
	assert.Contains(t, f.hub.types(), internal_hub.EventOpenAIDisconnected)
}

func TestTranscriptsProcessedInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)

	session.cb.OnTranscript("first")
	session.cb.OnTranscript("second")
	session.cb.OnTranscript("third")

	require.Eventually(t, func() bool {
		return len(f.pipeline.processed()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"first", "second", "third"}, f.pipeline.processed())
}

func TestReleaseLastClientTearsDown(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 1
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)
	tr := f.lastTranscoder(t)

	f.coordinator.ReleaseClient(nil, conversationId)

	assert.True(t, session.closed)
	assert.True(t, tr.stopped)
	f.coordinator.mu.Lock()
	_, exists := f.coordinator.states[conversationId]
	f.coordinator.mu.Unlock()
	assert.False(t, exists)
}

func TestEndAndSummarizeHappyPath(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)
	store := messageStore{f.store}
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Create(context.Background(), &internal_entity.Message{
			ConversationId: conversationId,
			SenderType:     internal_entity.SenderTypeUser,
			Language:       "en",
			OriginalText:   fmt.Sprintf("message %d", i),
		}))
	}
	require.NoError(t, actionStore{f.store}.CreateNote(context.Background(), &internal_entity.Note{
		ConversationId: conversationId,
		Content:        "patient reports headache",
	}))

	conversation, summary, err := f.coordinator.EndAndSummarize(context.Background(), 1, conversationId)
	require.NoError(t, err)
	assert.Equal(t, internal_entity.ConversationStatusSummarized, conversation.Status)
	require.NotNil(t, summary)
	assert.Equal(t, "visit summary", *summary)
	assert.NotNil(t, conversation.EndTime)
	assert.Contains(t, f.hub.types(), internal_hub.EventSummaryData)

	// Summary round-trip.
	stored, err := summaryStore{f.store}.GetByConversation(context.Background(), conversationId)
	require.NoError(t, err)
	assert.Equal(t, "visit summary", stored.Content)
}

func TestEndAndSummarizeLLMFailure(t *testing.T) {
	f := newFixture(t)
	f.ai.summaryErr = fmt.Errorf("model unavailable")
	conversationId := f.newConversation(t, 1)
	require.NoError(t, messageStore{f.store}.Create(context.Background(), &internal_entity.Message{
		ConversationId: conversationId,
		SenderType:     internal_entity.SenderTypeUser,
		Language:       "en",
		OriginalText:   "hello",
	}))

	conversation, summary, err := f.coordinator.EndAndSummarize(context.Background(), 1, conversationId)
	require.NoError(t, err)
	assert.Equal(t, internal_entity.ConversationStatusEndedError, conversation.Status)
	assert.Nil(t, summary)

	stored, err := summaryStore{f.store}.GetByConversation(context.Background(), conversationId)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestEndAndSummarizeEmptyConversation(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)

	conversation, summary, err := f.coordinator.EndAndSummarize(context.Background(), 1, conversationId)
	require.NoError(t, err)
	assert.Equal(t, internal_entity.ConversationStatusEnded, conversation.Status)
	assert.Nil(t, summary)
	assert.NotContains(t, f.hub.types(), internal_hub.EventSummaryData)
}

func TestEndAndSummarizeReleasesUpstream(t *testing.T) {
	f := newFixture(t)
	f.hub.clients = 1
	conversationId := f.newConversation(t, 1)
	f.coordinator.EnsureUpstream(conversationId)
	session := f.lastSession(t)
	tr := f.lastTranscoder(t)

	_, _, err := f.coordinator.EndAndSummarize(context.Background(), 1, conversationId)
	require.NoError(t, err)

	assert.True(t, session.closed)
	assert.True(t, tr.stopped)
	f.coordinator.mu.Lock()
	_, exists := f.coordinator.states[conversationId]
	f.coordinator.mu.Unlock()
	assert.False(t, exists)
}

func TestEndAndSummarizeRejectsTerminalConversation(t *testing.T) {
	f := newFixture(t)
	conversationId := f.newConversation(t, 1)

	_, _, err := f.coordinator.EndAndSummarize(context.Background(), 1, conversationId)
	require.NoError(t, err)

	_, _, err = f.coordinator.EndAndSummarize(context.Background(), 1, conversationId)
	assert.Error(t, err)
}

func TestFormatSummaryContext(t *testing.T) {
	translated := "My head hurts"
	originalId := uint64(1)
	out := formatSummaryContext(
		[]*internal_entity.Message{
			{Id: 1, SenderType: "patient", Language: "es", OriginalText: "Me duele la cabeza"},
			{Id: 2, SenderType: "translation", Language: "en", OriginalText: "Me duele la cabeza",
				TranslatedText: &translated, OriginalMessageId: &originalId},
		},
		[]*internal_entity.Note{{Content: "patient reports headache"}},
		[]*internal_entity.Prescription{{MedicationName: "ibuprofen", Dosage: "400mg", Frequency: "q8h"}},
		[]*internal_entity.FollowUp{{ScheduledFor: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)}},
	)

	assert.Contains(t, out, "patient (es): Me duele la cabeza")
	assert.Contains(t, out, "translation of message 1 (en): My head hurts")
	assert.Contains(t, out, "--- Recorded Actions ---")
	assert.Contains(t, out, "note: patient reports headache")
	assert.Contains(t, out, "prescription: ibuprofen 400mg q8h")
	assert.Contains(t, out, "follow-up: 2025-07-01")
}
