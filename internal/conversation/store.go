package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/christian-lee/callpilot/internal/logx"
)

// ErrEmptyContents is returned by AppendUser/AppendAssistant when given no
// content.
var ErrEmptyContents = errors.New("conversation: empty contents")

// ErrEmptyWindow is returned by ApplySummary when given an empty window.
var ErrEmptyWindow = errors.New("conversation: empty summary window")

// Store is the ordered message sequence plus its cursors.
type Store struct {
	log *logx.Logger

	mu               sync.Mutex
	messages         []*Message
	nextID           int
	firstLlmIndex    int
	lastSummaryIndex int
	serializationCursor int
}

// New creates an empty store.
func New(name string) *Store {
	return &Store{
		log:              logx.Named("conversation." + name),
		lastSummaryIndex: -1,
	}
}

// AppendUser appends (or merges into) the trailing USER turn.
func (s *Store) AppendUser(contents []string) (*Message, error) {
	return s.append(RoleUser, contents)
}

// AppendAssistant appends (or merges into) the trailing ASSISTANT turn.
func (s *Store) AppendAssistant(contents []string) (*Message, error) {
	return s.append(RoleAssistant, contents)
}

func (s *Store) append(role Role, contents []string) (*Message, error) {
	if len(contents) == 0 {
		return nil, ErrEmptyContents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	if len(s.messages) == 0 || s.firstLlmIndex > len(s.messages)-1 {
		// firstLlmIndex lands on the first slot written here, so a FAKE
		// filler stays inside the LLM view and the view still opens with
		// USER.
		s.firstLlmIndex = len(s.messages)
		if role == RoleAssistant {
			s.insertFakeUser(now)
		}
		return s.insertNew(role, contents, now), nil
	}

	if last := s.lastNonSummaryFrom(s.firstLlmIndex); last != nil && last.Role == role {
		last.appendContents(contents)
		last.Metadata.setAttribute(AttrMerged)
		return last, nil
	}

	return s.insertNew(role, contents, now), nil
}

// insertFakeUser inserts a synthetic filler USER message so the sequence
// never begins (from firstLlmIndex) with ASSISTANT.
func (s *Store) insertFakeUser(now time.Time) {
	m := &Message{ID: s.nextID, Role: RoleUser, Contents: []string{"..."}, Metadata: newMetadata()}
	m.Metadata.setAttribute(AttrFake)
	m.Metadata.stamp(TimingCreation, now)
	s.nextID++
	s.messages = append(s.messages, m)
	s.log.Trace("inserted synthetic FAKE USER filler")
}

func (s *Store) insertNew(role Role, contents []string, now time.Time) *Message {
	m := &Message{ID: s.nextID, Role: role, Contents: append([]string(nil), contents...), Metadata: newMetadata()}
	m.Metadata.stamp(TimingCreation, now)
	s.nextID++
	s.messages = append(s.messages, m)
	return m
}

// lastNonSummaryFrom returns the last non-SUMMARY message at index >= from,
// or nil.
func (s *Store) lastNonSummaryFrom(from int) *Message {
	for i := len(s.messages) - 1; i >= from && i >= 0; i-- {
		if s.messages[i].Role != RoleSummary {
			return s.messages[i]
		}
	}
	return nil
}

// MetaView returns the full ordered sequence, including SUMMARY and FAKE
// messages. The returned slice is a defensive copy of the pointer slice;
// Messages themselves are shared and must be treated as read-only.
func (s *Store) MetaView() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LLMView returns the subsequence starting at firstLlmIndex, excluding
// SUMMARY messages. Empty when firstLlmIndex is out of range.
func (s *Store) LLMView() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstLlmIndex >= len(s.messages) {
		return nil
	}
	var out []*Message
	for _, m := range s.messages[s.firstLlmIndex:] {
		if m.Role == RoleSummary {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SummaryWindow is the argument to ApplySummary: the contiguous range of
// message indices a new SUMMARY should absorb, plus the prior SUMMARY (if
// any).
type SummaryWindow struct {
	PriorSummary *Message
	Messages     []*Message
}

// Last returns the final message in the window, or nil if empty.
func (w SummaryWindow) Last() *Message {
	if len(w.Messages) == 0 {
		return nil
	}
	return w.Messages[len(w.Messages)-1]
}

// GetSummaryInfo returns the last SUMMARY (if any) plus every non-SUMMARY
// message in [firstLlmIndex, lastAssistantIndex]. Trailing unanswered USER
// turns are excluded by construction.
func (s *Store) GetSummaryInfo() SummaryWindow {
	s.mu.Lock()
	defer s.mu.Unlock()

	lastAssistant := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			lastAssistant = i
			break
		}
	}
	if lastAssistant < 0 || lastAssistant < s.firstLlmIndex {
		return SummaryWindow{}
	}

	var prior *Message
	if s.lastSummaryIndex >= 0 && s.lastSummaryIndex < len(s.messages) {
		prior = s.messages[s.lastSummaryIndex]
	}

	var msgs []*Message
	for i := s.firstLlmIndex; i <= lastAssistant; i++ {
		if s.messages[i].Role == RoleSummary {
			continue
		}
		msgs = append(msgs, s.messages[i])
	}
	return SummaryWindow{PriorSummary: prior, Messages: msgs}
}

// ApplySummary inserts a new SUMMARY message right after window.Last(),
// recording the contributing message IDs, and advances the cursors.
func (s *Store) ApplySummary(summaryText string, window SummaryWindow) (*Message, error) {
	last := window.Last()
	if last == nil {
		return nil, ErrEmptyWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	insertAt := -1
	for i, m := range s.messages {
		if m == last {
			insertAt = i + 1
			break
		}
	}
	if insertAt < 0 {
		return nil, ErrEmptyWindow
	}

	ids := make([]int, 0, len(window.Messages))
	for _, m := range window.Messages {
		ids = append(ids, m.ID)
	}

	summary := &Message{ID: s.nextID, Role: RoleSummary, Contents: []string{summaryText}, Metadata: newMetadata()}
	summary.Metadata.SummaryIDs = ids
	summary.Metadata.stamp(TimingCreation, time.Now())
	s.nextID++

	s.messages = append(s.messages, nil)
	copy(s.messages[insertAt+1:], s.messages[insertAt:])
	s.messages[insertAt] = summary

	s.lastSummaryIndex = insertAt
	s.firstLlmIndex = insertAt + 1

	return summary, nil
}

// ExportIncremental returns the segment [serializationCursor, end) where
// end = size - (1 if excludeLast else 0), advancing the cursor to end.
func (s *Store) ExportIncremental(excludeLast bool) []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := len(s.messages)
	if excludeLast && end > 0 {
		end--
	}
	if end < s.serializationCursor {
		end = s.serializationCursor
	}

	out := make([]*Message, end-s.serializationCursor)
	copy(out, s.messages[s.serializationCursor:end])
	s.serializationCursor = end
	return out
}

// ToMap serializes the store's cursors and message list into a
// plain-data form suitable for JSON encoding.
func (s *Store) ToMap() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]map[string]any, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = map[string]any{
			"id":       m.ID,
			"role":     string(m.Role),
			"contents": m.Contents,
		}
	}
	return map[string]any{
		"messages":            msgs,
		"firstLlmIndex":       s.firstLlmIndex,
		"lastSummaryIndex":    s.lastSummaryIndex,
		"serializationCursor": s.serializationCursor,
	}
}
