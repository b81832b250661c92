package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/healthwatch-api/internal/dto"
	"github.com/noah-isme/healthwatch-api/internal/handler"
	"github.com/noah-isme/healthwatch-api/internal/models"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/service"
)

const contentListSchemaJSON = `{
  "type": "object",
  "required": ["success", "message", "data", "meta"],
  "properties": {
    "success": {"const": true},
    "data": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "collection", "title", "category", "display", "status", "voteCount", "hasVoted", "route", "createdAt"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "display": {
            "type": "object",
            "required": ["name", "icon", "color"]
          },
          "voteCount": {"type": "integer", "minimum": 0},
          "hasVoted": {"type": "boolean"},
          "route": {"type": "string", "pattern": "^/content/"}
        }
      }
    },
    "meta": {
      "type": "object",
      "required": ["status", "total", "category", "query", "loadedAt"],
      "properties": {
        "status": {"enum": ["ready", "error"]},
        "total": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

func newContentApp(t *testing.T) *fiber.App {
	t.Helper()

	documents := newTestStore(t)
	validate := validator.New(validator.WithRequiredStructEnabled())
	repo := repository.NewContentRepository(documents)
	content := service.NewContentService(repo, documents, newTestRedis(t), time.Minute, nil, validate, zerolog.Nop())
	votes := service.NewVoteService(repo, content, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v1/content", asActor(nurse, patient))
	handler.NewContentHandler(content, votes, nil, zerolog.Nop()).Register(group)
	return app
}

func publish(t *testing.T, app *fiber.App, collection string, payload dto.ContentCreateRequest) dto.ContentResponse {
	t.Helper()
	resp, body := call(t, app, http.MethodPost, "/api/v1/content/"+collection, nurse, payload)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)

	var created dto.ContentResponse
	decodeData(t, body, &created)
	return created
}

func TestContentHandlerPublishAndList(t *testing.T) {
	app := newContentApp(t)

	resp, body := call(t, app, http.MethodPost, "/api/v1/content/news", patient, dto.ContentCreateRequest{Title: "Rumour"})
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.False(t, body.Success)
	require.Equal(t, "forbidden", body.Error.Kind)

	created := publish(t, app, "news", dto.ContentCreateRequest{
		Title:    "Cholera outbreak update",
		Category: "Outbreaks",
		Content:  dto.ContentBodyInput{Introduction: "Boil drinking water."},
	})
	require.NotEmpty(t, created.ID)
	require.Equal(t, "/content/news/"+created.ID, created.Route)
	require.Equal(t, "Outbreaks", created.Display.Name)
	publish(t, app, "news", dto.ContentCreateRequest{Title: "New vaccine drive", Category: "Vaccination"})

	resp, body = call(t, app, http.MethodGet, "/api/v1/content/news?category=Outbreaks", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "false", resp.Header.Get("X-Cache-Hit"))

	var items []dto.ContentResponse
	decodeData(t, body, &items)
	require.Len(t, items, 1)
	require.Equal(t, created.ID, items[0].ID)

	resp, body = call(t, app, http.MethodGet, "/api/v1/content/news?q=vaccine", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "true", resp.Header.Get("X-Cache-Hit"))
	decodeData(t, body, &items)
	require.Len(t, items, 1)
	require.Equal(t, "New vaccine drive", items[0].Title)

	resp, body = call(t, app, http.MethodGet, "/api/v1/content/news/"+created.ID, patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var detail dto.ContentResponse
	decodeData(t, body, &detail)
	require.Equal(t, "Boil drinking water.", detail.Content.Introduction)
}

func TestContentHandlerListMatchesContract(t *testing.T) {
	app := newContentApp(t)
	publish(t, app, "tips", dto.ContentCreateRequest{Title: "Wash your hands", Category: "Hygiene"})

	req, err := http.NewRequest(http.MethodGet, "/api/v1/content/tips", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", patient.ID)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))

	schema := jsonschema.MustCompileString("https://healthwatch.local/schemas/content-list.json", contentListSchemaJSON)
	require.NoError(t, schema.Validate(payload))
}

func TestContentHandlerSelectorActions(t *testing.T) {
	app := newContentApp(t)

	resp, body := call(t, app, http.MethodGet, "/api/v1/content/feeds?category=Create%20New", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var selection dto.SelectionResponse
	decodeData(t, body, &selection)
	require.True(t, selection.Navigate)
	require.Equal(t, "/content/feeds/new", selection.Route)

	resp, body = call(t, app, http.MethodGet, "/api/v1/content/feeds/categories", patient, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var categories dto.CategoriesResponse
	decodeData(t, body, &categories)
	require.Equal(t, "All", categories.All)
	require.Equal(t, "/content/feeds/new", categories.CreateNew)
	require.Equal(t, "Other", categories.Categories[len(categories.Categories)-1].Name)

	resp, body = call(t, app, http.MethodGet, "/api/v1/content/recipes", patient, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body.Error.Kind)
}

func TestContentHandlerVotesAndPolls(t *testing.T) {
	app := newContentApp(t)

	resp, body := call(t, app, http.MethodPost, "/api/v1/content/feeds", patient, dto.ContentCreateRequest{
		Title: "Which clinic hours suit you?",
		Poll:  &dto.PollInput{Question: "Preferred hours?", Options: []string{"Morning", "Evening"}},
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body.Message)
	var poll dto.ContentResponse
	decodeData(t, body, &poll)
	require.NotNil(t, poll.Poll)

	base := "/api/v1/content/feeds/" + poll.ID

	resp, body = call(t, app, http.MethodPost, base+"/vote/toggle", nurse, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var vote dto.VoteResponse
	decodeData(t, body, &vote)
	require.True(t, vote.HasVoted)
	require.Equal(t, 1, vote.VoteCount)

	resp, body = call(t, app, http.MethodPost, base+"/vote", nurse, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeData(t, body, &vote)
	require.False(t, vote.Changed)
	require.Equal(t, 1, vote.VoteCount)

	resp, _ = call(t, app, http.MethodDelete, base+"/vote", nurse, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = call(t, app, http.MethodPost, base+"/poll/vote", nurse, map[string]int{"option": 1})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body.Message)
	var voted dto.ContentResponse
	decodeData(t, body, &voted)
	require.NotNil(t, voted.Poll.Selected)
	require.Equal(t, 1, *voted.Poll.Selected)
	require.Equal(t, 1, voted.Poll.TotalVotes)

	resp, body = call(t, app, http.MethodPost, base+"/poll/vote", nurse, map[string]interface{}{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation", body.Error.Kind)

	resp, _ = call(t, app, http.MethodPost, base+"/vote", models.Actor{}, nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body = call(t, app, http.MethodPost, base+"/image", nurse, nil)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "mutation", body.Error.Kind)
}
