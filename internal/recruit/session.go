package recruit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Session is one live interview, keyed by its channel ID. QuestionIndex
// is -1 before the readiness gate passes, 0..len(questions)-1 while a
// question is active, and len(questions) once concluded.
type Session struct {
	ChannelID     string
	GuildID       string
	ApplicantID   string
	ApplicantName string
	DMMode        bool

	QuestionIndex int
	Answers       []string

	buffer     []string
	lastInput  time.Time
	watcher    context.CancelFunc
	watcherGen int
}

// applicantRecord survives a session's conclusion so officer decisions
// can still resolve who the interview was about.
type applicantRecord struct {
	applicantID   string
	applicantName string
	guildID       string
	dmMode        bool
}

// Store owns all interview sessions. Every mutation goes through the
// Store under one mutex; in particular a buffer flush is a single
// take-and-clear so a watcher and the inbound callback can never split
// or duplicate an answer.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	concluded map[string]applicantRecord
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]*Session),
		concluded: make(map[string]applicantRecord),
	}
}

// Create registers a new session for the channel. An existing session
// for the same channel is overwritten after its watcher is cancelled.
func (s *Store) Create(channelID, guildID, applicantID, applicantName string, dmMode bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.sessions[channelID]; ok && old.watcher != nil {
		old.watcher()
	}
	delete(s.concluded, channelID)
	s.sessions[channelID] = &Session{
		ChannelID:     channelID,
		GuildID:       guildID,
		ApplicantID:   applicantID,
		ApplicantName: applicantName,
		DMMode:        dmMode,
		QuestionIndex: -1,
		lastInput:     time.Now(),
	}
}

// Clear removes the session, its watcher, and any concluded record.
func (s *Store) Clear(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[channelID]; ok {
		if sess.watcher != nil {
			sess.watcher()
		}
		delete(s.sessions, channelID)
	}
	delete(s.concluded, channelID)
}

// Conclude discards the interview state but keeps the applicant on
// record for the officer decision.
func (s *Store) Conclude(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[channelID]
	if !ok {
		return
	}
	if sess.watcher != nil {
		sess.watcher()
	}
	delete(s.sessions, channelID)
	s.concluded[channelID] = applicantRecord{
		applicantID:   sess.ApplicantID,
		applicantName: sess.ApplicantName,
		guildID:       sess.GuildID,
		dmMode:        sess.DMMode,
	}
}

func (s *Store) Exists(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[channelID]
	return ok
}

// Concluded reports whether the channel holds a finished interview
// awaiting an officer decision.
func (s *Store) Concluded(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.concluded[channelID]
	return ok
}

// Applicant returns the applicant identity for a live or concluded
// interview in the channel.
func (s *Store) Applicant(channelID string) (id, name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, found := s.sessions[channelID]; found {
		return sess.ApplicantID, sess.ApplicantName, true
	}
	if rec, found := s.concluded[channelID]; found {
		return rec.applicantID, rec.applicantName, true
	}
	return "", "", false
}

func (s *Store) GuildID(channelID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[channelID]; ok {
		return sess.GuildID
	}
	if rec, ok := s.concluded[channelID]; ok {
		return rec.guildID
	}
	return ""
}

func (s *Store) Index(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[channelID]; ok {
		return sess.QuestionIndex
	}
	return -1
}

func (s *Store) IsDM(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[channelID]; ok {
		return sess.DMMode
	}
	if rec, ok := s.concluded[channelID]; ok {
		return rec.dmMode
	}
	return false
}

// Answers returns a copy of the committed answers.
func (s *Store) Answers(channelID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[channelID]
	if !ok {
		return nil
	}
	out := make([]string, len(sess.Answers))
	copy(out, sess.Answers)
	return out
}

// Buffer appends a raw applicant line when the author owns the session.
// New input restarts the quiescence clock.
func (s *Store) Buffer(channelID, authorID, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[channelID]
	if !ok || sess.ApplicantID != authorID {
		return false
	}
	sess.buffer = append(sess.buffer, content)
	sess.lastInput = time.Now()
	return true
}

// ResetPrompt clears the buffer and restarts the quiescence clock; called
// when a new prompt is posted.
func (s *Store) ResetPrompt(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[channelID]; ok {
		sess.buffer = nil
		sess.lastInput = time.Now()
	}
}

// TouchPrompt restarts the quiescence clock without clearing the buffer;
// used by re-prompts that must keep waiting.
func (s *Store) TouchPrompt(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[channelID]; ok {
		sess.lastInput = time.Now()
	}
}

// TakeBuffer flushes the buffer unconditionally: the joined text is
// returned and the buffer cleared in one step. Used by the readiness
// gate, which reacts to any input.
func (s *Store) TakeBuffer(channelID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[channelID]
	if !ok || len(sess.buffer) == 0 {
		return "", false
	}
	text := strings.Join(sess.buffer, "\n")
	sess.buffer = nil
	return text, true
}

// TakeBufferAfter flushes the buffer only once the quiescence window has
// elapsed since the last input. Returns the joined text and the active
// question index.
func (s *Store) TakeBufferAfter(channelID string, quiet time.Duration) (text string, index int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[channelID]
	if !found || len(sess.buffer) == 0 {
		return "", 0, false
	}
	if time.Since(sess.lastInput) < quiet {
		return "", 0, false
	}
	text = strings.Join(sess.buffer, "\n")
	sess.buffer = nil
	return text, sess.QuestionIndex, true
}

// SetIndex moves the session to the given question index.
func (s *Store) SetIndex(channelID string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[channelID]; ok {
		sess.QuestionIndex = index
	}
}

// CommitAnswer appends the answer verbatim and advances the index,
// returning the new index.
func (s *Store) CommitAnswer(channelID, answer string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[channelID]
	if !ok {
		return -1
	}
	sess.Answers = append(sess.Answers, answer)
	sess.QuestionIndex++
	sess.lastInput = time.Now()
	return sess.QuestionIndex
}

// SetWatcher installs a new watcher cancel handle, cancelling any
// predecessor, and returns a generation token for ReleaseWatcher.
func (s *Store) SetWatcher(channelID string, cancel context.CancelFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[channelID]
	if !ok {
		cancel()
		return 0
	}
	if sess.watcher != nil {
		sess.watcher()
	}
	sess.watcher = cancel
	sess.watcherGen++
	return sess.watcherGen
}

// ReleaseWatcher clears the watcher handle when the finishing watcher is
// still the current generation.
func (s *Store) ReleaseWatcher(channelID string, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[channelID]; ok && sess.watcherGen == gen {
		sess.watcher = nil
	}
}

// HasWatcher reports whether a watcher is currently installed.
func (s *Store) HasWatcher(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[channelID]
	return ok && sess.watcher != nil
}
