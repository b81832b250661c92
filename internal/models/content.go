package models

import (
	"net/url"
	"strings"
	"time"
)

// Content collections served by the feed views.
const (
	CollectionHealthConditions = "health_conditions"
	CollectionFeeds            = "feeds"
	CollectionNews             = "news"
	CollectionTips             = "tips"
)

// Content statuses. Archived and deleted are terminal.
const (
	ContentStatusActive   = "active"
	ContentStatusArchived = "archived"
	ContentStatusDeleted  = "deleted"
)

// ContentTypePoll marks a feed entry carrying an embedded poll.
const ContentTypePoll = "poll"

// CategoryOther is the display bucket for unknown categories.
const CategoryOther = "Other"

// ContentCollections lists every collection holding ContentRecords.
var ContentCollections = []string{
	CollectionHealthConditions,
	CollectionFeeds,
	CollectionNews,
	CollectionTips,
}

// IsContentCollection reports whether name is one of the content collections.
func IsContentCollection(name string) bool {
	for _, collection := range ContentCollections {
		if collection == name {
			return true
		}
	}
	return false
}

// ContentArrayFields are the category-specific ordered sections of a content body.
var ContentArrayFields = []string{
	"symptoms",
	"causes",
	"complications",
	"treatments",
	"prevention",
	"tips",
	"emergencySigns",
	"steps",
	"benefits",
}

// Author identifies who wrote a record.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Scope holds the geographic tags used to partition content visibility.
type Scope struct {
	Local    string `json:"local"`
	State    string `json:"state"`
	National string `json:"national"`
}

// IsZero reports whether no geographic tag is set.
func (s Scope) IsZero() bool {
	return s.Local == "" && s.State == "" && s.National == ""
}

// ContentBody is the nested, category dependent body of a ContentRecord.
type ContentBody struct {
	Introduction   string              `json:"introduction"`
	Symptoms       []string            `json:"symptoms"`
	Causes         []string            `json:"causes"`
	Complications  []string            `json:"complications"`
	Treatments     []string            `json:"treatments"`
	Prevention     []string            `json:"prevention"`
	Tips           []string            `json:"tips"`
	EmergencySigns []string            `json:"emergencySigns"`
	Steps          []string            `json:"steps"`
	Benefits       []string            `json:"benefits"`
	Extra          map[string][]string `json:"extra"`
}

// Section returns the array stored under one of ContentArrayFields.
func (b ContentBody) Section(field string) []string {
	switch field {
	case "symptoms":
		return b.Symptoms
	case "causes":
		return b.Causes
	case "complications":
		return b.Complications
	case "treatments":
		return b.Treatments
	case "prevention":
		return b.Prevention
	case "tips":
		return b.Tips
	case "emergencySigns":
		return b.EmergencySigns
	case "steps":
		return b.Steps
	case "benefits":
		return b.Benefits
	default:
		return b.Extra[field]
	}
}

// SetSection assigns the array for field.
func (b *ContentBody) SetSection(field string, values []string) {
	switch field {
	case "symptoms":
		b.Symptoms = values
	case "causes":
		b.Causes = values
	case "complications":
		b.Complications = values
	case "treatments":
		b.Treatments = values
	case "prevention":
		b.Prevention = values
	case "tips":
		b.Tips = values
	case "emergencySigns":
		b.EmergencySigns = values
	case "steps":
		b.Steps = values
	case "benefits":
		b.Benefits = values
	default:
		if b.Extra == nil {
			b.Extra = map[string][]string{}
		}
		b.Extra[field] = values
	}
}

// PollOption is one answer of a poll with its tally.
type PollOption struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll is embedded in content of type "poll".
type Poll struct {
	Question string         `json:"question"`
	Options  []PollOption   `json:"options"`
	Voters   map[string]int `json:"voters"`
}

// ContentRecord is the canonical health condition, feed, news or tip entry.
type ContentRecord struct {
	ID         string      `json:"id"`
	Collection string      `json:"collection"`
	Title      string      `json:"title"`
	Category   string      `json:"category"`
	Type       string      `json:"type"`
	Snippet    string      `json:"snippet"`
	Content    ContentBody `json:"content"`
	Author     Author      `json:"author"`
	Scope      Scope       `json:"scope"`
	Status     string      `json:"status"`
	ImageURL   string      `json:"imageUrl"`
	Poll       Poll        `json:"poll"`
	Votes      []string    `json:"votes"`
	VoteCount  int         `json:"voteCount"`
	CreatedAt  *time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time  `json:"updatedAt"`
}

// RecordID returns the backend assigned identifier.
func (r ContentRecord) RecordID() string { return r.ID }

// RecordCategory returns the category used by category tabs.
func (r ContentRecord) RecordCategory() string { return r.Category }

// SearchText returns the fields matched by free-text search.
func (r ContentRecord) SearchText() []string {
	return []string{r.Title, r.Snippet, r.Content.Introduction}
}

// HasVoted reports whether userID holds an active vote on the record.
func (r ContentRecord) HasVoted(userID string) bool {
	for _, voter := range r.Votes {
		if voter == userID {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the record reached a terminal status.
func (r ContentRecord) IsTerminal() bool {
	return r.Status == ContentStatusArchived || r.Status == ContentStatusDeleted
}

// IsPoll reports whether the record carries a poll.
func (r ContentRecord) IsPoll() bool {
	return strings.EqualFold(r.Type, ContentTypePoll) || len(r.Poll.Options) > 0
}

var voterKeyEscaper = strings.NewReplacer("%", "%25", ".", "%2E", "$", "%24")

// VoterKey encodes a user id as a single map key. Store paths split on dots,
// so ids such as email addresses must not reach them raw.
func VoterKey(userID string) string {
	return voterKeyEscaper.Replace(userID)
}

// VoterID reverses VoterKey. Keys written before escaping decode unchanged.
func VoterID(key string) string {
	if !strings.Contains(key, "%") {
		return key
	}
	decoded, err := url.PathUnescape(key)
	if err != nil {
		return key
	}
	return decoded
}
