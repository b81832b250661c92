package dto

import (
	"time"

	"github.com/noah-isme/healthwatch-api/internal/feed"
	"github.com/noah-isme/healthwatch-api/internal/models"
)

// ContentListQuery holds the selector state of a list view.
type ContentListQuery struct {
	Category string `query:"category" validate:"omitempty,max=64"`
	Query    string `query:"q" validate:"omitempty,max=200"`
	Local    string `query:"local" validate:"omitempty,max=100"`
	State    string `query:"state" validate:"omitempty,max=100"`
	National string `query:"national" validate:"omitempty,max=100"`
}

// Scope returns the geographic filter of the query.
func (q ContentListQuery) Scope() models.Scope {
	return models.Scope{Local: q.Local, State: q.State, National: q.National}
}

// ContentBodyInput is the category specific body of a create or edit request.
type ContentBodyInput struct {
	Introduction string              `json:"introduction" validate:"max=10000"`
	Sections     map[string][]string `json:"sections" validate:"omitempty,dive,dive,max=2000"`
}

// PollInput describes the poll of a poll entry.
type PollInput struct {
	Question string   `json:"question" validate:"required,min=3,max=300"`
	Options  []string `json:"options" validate:"required,min=2,max=10,dive,required,max=200"`
}

// ContentCreateRequest is the payload of a new content entry.
type ContentCreateRequest struct {
	Title    string           `json:"title" validate:"required,min=3,max=200"`
	Category string           `json:"category" validate:"omitempty,max=64"`
	Type     string           `json:"type" validate:"omitempty,oneof=article advice tip news question poll guide"`
	Snippet  string           `json:"snippet" validate:"omitempty,max=500"`
	Content  ContentBodyInput `json:"content"`
	Scope    ScopeInput       `json:"scope"`
	Poll     *PollInput       `json:"poll"`
}

// ContentUpdateRequest edits an entry; nil fields are left untouched.
type ContentUpdateRequest struct {
	Title    *string           `json:"title" validate:"omitempty,min=3,max=200"`
	Category *string           `json:"category" validate:"omitempty,max=64"`
	Snippet  *string           `json:"snippet" validate:"omitempty,max=500"`
	Content  *ContentBodyInput `json:"content"`
	Scope    *ScopeInput       `json:"scope"`
}

// ContentStatusRequest retires an entry.
type ContentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=archived deleted"`
}

// PollVoteRequest selects a poll option by index.
type PollVoteRequest struct {
	Option *int `json:"option" validate:"required,min=0"`
}

// ScopeInput tags content or a profile geographically.
type ScopeInput struct {
	Local    string `json:"local" validate:"omitempty,max=100"`
	State    string `json:"state" validate:"omitempty,max=100"`
	National string `json:"national" validate:"omitempty,max=100"`
}

func (s ScopeInput) Model() models.Scope {
	return models.Scope{Local: s.Local, State: s.State, National: s.National}
}

// ContentResponse is a content record as served to clients.
type ContentResponse struct {
	ID         string               `json:"id"`
	Collection string               `json:"collection"`
	Title      string               `json:"title"`
	Category   string               `json:"category"`
	Display    feed.CategoryDisplay `json:"display"`
	Type       string               `json:"type"`
	Snippet    string               `json:"snippet"`
	Content    models.ContentBody   `json:"content"`
	Author     models.Author        `json:"author"`
	Scope      models.Scope         `json:"scope"`
	Status     string               `json:"status"`
	ImageURL   string               `json:"imageUrl"`
	Poll       *PollResponse        `json:"poll,omitempty"`
	VoteCount  int                  `json:"voteCount"`
	HasVoted   bool                 `json:"hasVoted"`
	Route      string               `json:"route"`
	CreatedAt  *time.Time           `json:"createdAt"`
	UpdatedAt  *time.Time           `json:"updatedAt"`
}

// PollResponse hides other voters and exposes the viewer's choice.
type PollResponse struct {
	Question   string              `json:"question"`
	Options    []models.PollOption `json:"options"`
	TotalVotes int                 `json:"totalVotes"`
	Selected   *int                `json:"selected"`
}

// NewContentResponse converts a record for the viewer.
func NewContentResponse(record models.ContentRecord, viewerID string) ContentResponse {
	response := ContentResponse{
		ID:         record.ID,
		Collection: record.Collection,
		Title:      record.Title,
		Category:   record.Category,
		Display:    feed.DisplayFor(record.Collection, record.Category),
		Type:       record.Type,
		Snippet:    record.Snippet,
		Content:    record.Content,
		Author:     record.Author,
		Scope:      record.Scope,
		Status:     record.Status,
		ImageURL:   record.ImageURL,
		VoteCount:  record.VoteCount,
		HasVoted:   viewerID != "" && record.HasVoted(viewerID),
		Route:      feed.DetailRoute(record.Collection, record.ID),
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}

	if record.IsPoll() {
		poll := &PollResponse{Question: record.Poll.Question, Options: record.Poll.Options}
		for _, option := range record.Poll.Options {
			poll.TotalVotes += option.Votes
		}
		if index, ok := record.Poll.Voters[viewerID]; ok {
			selected := index
			poll.Selected = &selected
		}
		response.Poll = poll
	}
	return response
}

// NewContentResponseSlice converts records for the viewer.
func NewContentResponseSlice(records []models.ContentRecord, viewerID string) []ContentResponse {
	out := make([]ContentResponse, 0, len(records))
	for _, record := range records {
		out = append(out, NewContentResponse(record, viewerID))
	}
	return out
}

// ContentListResponse is the projected view of a collection.
type ContentListResponse struct {
	Status   feed.Status       `json:"status"`
	Items    []ContentResponse `json:"items"`
	Total    int               `json:"total"`
	Category string            `json:"category"`
	Query    string            `json:"query"`
	CacheHit bool              `json:"cacheHit"`
	LoadedAt time.Time         `json:"loadedAt"`
}

// SelectionResponse is returned when a selector value is a navigation action.
type SelectionResponse struct {
	Navigate bool   `json:"navigate"`
	Route    string `json:"route"`
}

// VoteResponse reports the voter's state after a vote mutation.
type VoteResponse struct {
	ID        string `json:"id"`
	HasVoted  bool   `json:"hasVoted"`
	VoteCount int    `json:"voteCount"`
	Changed   bool   `json:"changed"`
}

// CategoriesResponse lists the category tabs of a collection.
type CategoriesResponse struct {
	Collection string                 `json:"collection"`
	All        string                 `json:"all"`
	Categories []feed.CategoryDisplay `json:"categories"`
	CreateNew  string                 `json:"createRoute"`
}

// SeedContentRequest is a batch of reference entries for one collection.
type SeedContentRequest struct {
	Items []ContentCreateRequest `json:"items" validate:"required,min=1,max=200"`
}

// SeedResponse reports which seeded entries were new.
type SeedResponse struct {
	Collection string   `json:"collection"`
	Created    int      `json:"created"`
	Skipped    int      `json:"skipped"`
	IDs        []string `json:"ids"`
}
