package feed

import "github.com/noah-isme/healthwatch-api/internal/models"

// CategoryDisplay is how a category is rendered in tabs and cards.
type CategoryDisplay struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var otherDisplay = CategoryDisplay{Name: models.CategoryOther, Icon: "category", Color: "#9E9E9E"}

var categoryRegistry = map[string][]CategoryDisplay{
	models.CollectionHealthConditions: {
		{Name: "Infectious Diseases", Icon: "coronavirus", Color: "#E53935"},
		{Name: "Chronic Conditions", Icon: "monitor_heart", Color: "#8E24AA"},
		{Name: "Maternal Health", Icon: "pregnant_woman", Color: "#D81B60"},
		{Name: "Child Health", Icon: "child_care", Color: "#FB8C00"},
		{Name: "Mental Health", Icon: "psychology", Color: "#3949AB"},
		{Name: "Nutrition", Icon: "restaurant", Color: "#43A047"},
	},
	models.CollectionFeeds: {
		{Name: "Advice", Icon: "tips_and_updates", Color: "#00897B"},
		{Name: "Community", Icon: "groups", Color: "#1E88E5"},
		{Name: "Question", Icon: "help", Color: "#FDD835"},
		{Name: "Poll", Icon: "poll", Color: "#6D4C41"},
	},
	models.CollectionNews: {
		{Name: "Outbreaks", Icon: "warning", Color: "#E53935"},
		{Name: "Vaccination", Icon: "vaccines", Color: "#1E88E5"},
		{Name: "Policy", Icon: "gavel", Color: "#546E7A"},
		{Name: "Research", Icon: "science", Color: "#8E24AA"},
	},
	models.CollectionTips: {
		{Name: "Hygiene", Icon: "clean_hands", Color: "#00ACC1"},
		{Name: "Fitness", Icon: "fitness_center", Color: "#43A047"},
		{Name: "Nutrition", Icon: "restaurant", Color: "#7CB342"},
		{Name: "First Aid", Icon: "medical_services", Color: "#E53935"},
		{Name: "Sleep", Icon: "bedtime", Color: "#5E35B1"},
	},
}

// Categories lists the known categories of collection followed by the Other
// bucket. Unknown collections only have Other.
func Categories(collection string) []CategoryDisplay {
	known := categoryRegistry[collection]
	out := make([]CategoryDisplay, 0, len(known)+1)
	out = append(out, known...)
	return append(out, otherDisplay)
}

// DisplayFor maps a record category to its display, falling back to Other.
func DisplayFor(collection, category string) CategoryDisplay {
	for _, display := range categoryRegistry[collection] {
		if display.Name == category {
			return display
		}
	}
	return otherDisplay
}

// IsKnownCategory reports whether category is registered for collection.
func IsKnownCategory(collection, category string) bool {
	if category == models.CategoryOther {
		return true
	}
	for _, display := range categoryRegistry[collection] {
		if display.Name == category {
			return true
		}
	}
	return false
}
