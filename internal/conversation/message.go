// Package conversation implements the conversation store: an ordered
// sequence of USER/ASSISTANT/SUMMARY messages with strict-alternation and
// summarization-window invariants, plus the cursors that drive the LLM
// view and incremental export.
package conversation

import "time"

// Role identifies who produced a Message.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleSummary   Role = "SUMMARY"
)

// Attribute is a tag recorded on a Message's Metadata, e.g. FAKE or MERGED.
type Attribute string

const (
	AttrFake   Attribute = "FAKE"
	AttrMerged Attribute = "MERGED"
)

// TimingKey names an entry in Metadata.Timings.
type TimingKey string

const TimingCreation TimingKey = "CREATION"

// Metadata carries the bookkeeping attached to every Message.
type Metadata struct {
	Attributes map[Attribute]bool
	Timings    map[TimingKey]time.Time
	SummaryIDs []int
	Extras     map[string]string
}

func newMetadata() Metadata {
	return Metadata{
		Attributes: make(map[Attribute]bool),
		Timings:    make(map[TimingKey]time.Time),
		Extras:     make(map[string]string),
	}
}

func (m *Metadata) setAttribute(a Attribute) { m.Attributes[a] = true }

func (m *Metadata) stamp(key TimingKey, at time.Time) { m.Timings[key] = at }

// Message is one turn in the store.
type Message struct {
	ID       int
	Role     Role
	Contents []string
	Metadata Metadata
}

func (m *Message) appendContents(contents []string) {
	m.Contents = append(m.Contents, contents...)
}
