// Package normalize turns loosely typed store documents into canonical records.
//
// Every function in this package is total: any input, including an empty or nil
// document, yields a fully populated record. Missing fields resolve through fixed
// fallback chains and never produce an error.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/healthwatch-api/internal/models"
)

// Placeholder author used when a document carries no author information.
const (
	UnknownAuthorID   = "unknown"
	UnknownAuthorName = "Unknown Author"
	DefaultAuthorRole = models.RoleHealthWorker
)

// Variant tags the generation of a stored content document.
type Variant int

const (
	// VariantLegacy documents keep everything at the top level.
	VariantLegacy Variant = iota + 1
	// VariantCurrent documents nest the body under "content".
	VariantCurrent
)

func (v Variant) String() string {
	switch v {
	case VariantLegacy:
		return "legacy"
	case VariantCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// Classify reports which document generation data belongs to.
func Classify(data map[string]any) Variant {
	if _, ok := asMap(data["content"]); ok {
		return VariantCurrent
	}
	return VariantLegacy
}

// Fallback records that a field was resolved from something other than its
// primary source.
type Fallback struct {
	Field  string
	Source string
}

const sourceDefault = "default"

type resolver struct {
	top       map[string]any
	nested    map[string]any
	fallbacks []Fallback
}

func (r *resolver) note(field, source string, primary bool) {
	if !primary {
		r.fallbacks = append(r.fallbacks, Fallback{Field: field, Source: source})
	}
}

// text walks candidates in order; a candidate prefixed "content." reads the
// nested body.
func (r *resolver) text(field string, candidates ...string) string {
	for i, candidate := range candidates {
		if value, ok := r.value(candidate); ok {
			if text, ok := asString(value); ok {
				r.note(field, candidate, i == 0)
				return text
			}
		}
	}
	r.note(field, sourceDefault, false)
	return ""
}

func (r *resolver) value(path string) (any, bool) {
	if strings.HasPrefix(path, "content.") {
		return lookup(r.nested, strings.TrimPrefix(path, "content."))
	}
	return lookup(r.top, path)
}

func (r *resolver) section(field string) []string {
	if values, ok := asStrings(r.nestedValue(field)); ok {
		return values
	}
	if values, ok := asStrings(r.top[field]); ok {
		r.note("content."+field, field, false)
		return values
	}
	return []string{}
}

func (r *resolver) nestedValue(field string) any {
	if r.nested == nil {
		return nil
	}
	return r.nested[field]
}

// Content normalizes a content document.
func Content(doc models.Document) models.ContentRecord {
	record, _ := ContentWithReport(doc)
	return record
}

// ContentWithReport normalizes a content document and lists every field that
// needed a fallback.
func ContentWithReport(doc models.Document) (models.ContentRecord, []Fallback) {
	data := doc.Data
	if data == nil {
		data = map[string]any{}
	}

	var r *resolver
	switch Classify(data) {
	case VariantCurrent:
		nested, _ := asMap(data["content"])
		r = &resolver{top: data, nested: nested}
	case VariantLegacy:
		r = &resolver{top: data}
	}

	record := models.ContentRecord{
		ID:        doc.ID,
		Title:     r.text("title", "title", "name", "question"),
		Category:  r.text("category", "category"),
		Type:      r.text("type", "type"),
		Snippet:   r.text("snippet", "snippet", "description", "content.introduction"),
		Author:    r.author(),
		Scope:     r.scope(),
		Status:    r.text("status", "status"),
		ImageURL:  r.text("imageUrl", "imageUrl", "image", "coverImage"),
		Votes:     r.votes(),
		CreatedAt: r.timestamp("createdAt", "createdAt", "timestamp"),
		UpdatedAt: r.timestamp("updatedAt", "updatedAt"),
	}

	if record.Category == "" {
		record.Category = models.CategoryOther
	}
	if record.Type == "" {
		record.Type = "article"
	}
	if record.Status == "" {
		record.Status = models.ContentStatusActive
	}

	record.Content = models.ContentBody{
		Introduction: r.text("content.introduction", "content.introduction", "description", "snippet"),
		Extra:        map[string][]string{},
	}
	for _, field := range models.ContentArrayFields {
		record.Content.SetSection(field, r.section(field))
	}
	for key, value := range r.nested {
		if key == "introduction" || isKnownSection(key) {
			continue
		}
		if values, ok := asStrings(value); ok {
			record.Content.Extra[key] = values
		}
	}

	record.VoteCount = r.voteCount(len(record.Votes))
	record.Poll = r.poll()
	if record.Title == "" && record.Poll.Question != "" {
		record.Title = record.Poll.Question
	}

	return record, r.fallbacks
}

func isKnownSection(field string) bool {
	for _, known := range models.ContentArrayFields {
		if known == field {
			return true
		}
	}
	return false
}

func (r *resolver) author() models.Author {
	if nested, ok := asMap(r.top["author"]); ok {
		author := models.Author{ID: UnknownAuthorID, Name: UnknownAuthorName, Role: DefaultAuthorRole}
		if id, ok := firstString(nested, "id", "uid", "userId"); ok {
			author.ID = id
		}
		if name, ok := firstString(nested, "name", "displayName"); ok {
			author.Name = name
		}
		if role, ok := firstString(nested, "role"); ok {
			author.Role = role
		}
		return author
	}

	if name, ok := asString(r.top["author"]); ok {
		r.note("author", "author", false)
		author := models.Author{ID: UnknownAuthorID, Name: name, Role: DefaultAuthorRole}
		if id, ok := firstString(r.top, "authorId"); ok {
			author.ID = id
		}
		if role, ok := firstString(r.top, "authorRole"); ok {
			author.Role = role
		}
		return author
	}

	id, hasID := firstString(r.top, "authorId")
	name, hasName := firstString(r.top, "authorName")
	role, hasRole := firstString(r.top, "authorRole")
	if hasID || hasName || hasRole {
		r.note("author", "authorId", false)
		author := models.Author{ID: UnknownAuthorID, Name: UnknownAuthorName, Role: DefaultAuthorRole}
		if hasID {
			author.ID = id
		}
		if hasName {
			author.Name = name
		}
		if hasRole {
			author.Role = role
		}
		return author
	}

	r.note("author", sourceDefault, false)
	return models.Author{ID: UnknownAuthorID, Name: UnknownAuthorName, Role: DefaultAuthorRole}
}

func (r *resolver) scope() models.Scope {
	source := r.top
	if nested, ok := asMap(r.top["scope"]); ok {
		source = nested
	}
	local, _ := firstString(source, "local")
	state, _ := firstString(source, "state")
	national, _ := firstString(source, "national")
	return models.Scope{Local: local, State: state, National: national}
}

func (r *resolver) votes() []string {
	if values, ok := asStrings(r.top["votes"]); ok {
		return values
	}
	return []string{}
}

func (r *resolver) voteCount(voters int) int {
	for _, key := range []string{"voteCount", "likes"} {
		if count, ok := asInt(r.top[key]); ok {
			if count < 0 {
				return 0
			}
			return count
		}
	}
	return voters
}

func (r *resolver) timestamp(field string, candidates ...string) *time.Time {
	for i, candidate := range candidates {
		if value, ok := r.top[candidate]; ok {
			if t, ok := asTime(value); ok {
				r.note(field, candidate, i == 0)
				return t
			}
		}
	}
	return nil
}

// poll reads the nested poll map, falling back to the top level for the
// question and options of legacy polls. tally entries are deltas applied on
// top of any votes stored with the option itself.
func (r *resolver) poll() models.Poll {
	poll := models.Poll{Options: []models.PollOption{}, Voters: map[string]int{}}

	nested, _ := asMap(r.top["poll"])
	pick := func(key string) any {
		if value, ok := nested[key]; ok && value != nil {
			return value
		}
		return r.top[key]
	}

	if question, ok := asString(pick("question")); ok {
		poll.Question = question
	}

	tally, _ := asMap(pick("tally"))
	options := pick("options")
	if raw, ok := options.([]any); ok {
		for index, item := range raw {
			option := models.PollOption{}
			if v, ok := asMap(item); ok {
				option.Text, _ = firstString(v, "text", "label")
				option.Votes, _ = asInt(v["votes"])
			} else {
				option.Text, _ = asString(item)
			}
			if delta, ok := asInt(tally[strconv.Itoa(index)]); ok {
				option.Votes += delta
			}
			option.Votes = max(option.Votes, 0)
			poll.Options = append(poll.Options, option)
		}
	} else if texts, ok := asStrings(options); ok {
		for index, text := range texts {
			votes, _ := asInt(tally[strconv.Itoa(index)])
			poll.Options = append(poll.Options, models.PollOption{Text: text, Votes: max(votes, 0)})
		}
	}

	if voters, ok := asMap(pick("voters")); ok {
		for key, value := range voters {
			if index, ok := asInt(value); ok && index >= 0 && index < len(poll.Options) {
				poll.Voters[models.VoterID(key)] = index
			}
		}
	}

	return poll
}
