package endpoints

import (
	"github.com/jackzampolin/skim/internal/api"
)

// Groups maps command groups to their descriptions. Grouped endpoints
// are nested under a subcommand of the same name.
var Groups = map[string]string{
	booksGroup:    "Book management commands",
	llmcallsGroup: "LLM call history commands",
}

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&RootEndpoint{},
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Book endpoints
		&UploadEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&DeleteBookEndpoint{},
		&BookStatusEndpoint{},
		&NonChaptersEndpoint{},

		// Chapter endpoints
		&RetryChapterEndpoint{},
		&InvalidateChapterEndpoint{},

		// Summaries
		&SummaryEndpoint{},

		// LLM call history endpoints
		&ListLLMCallsEndpoint{},
		&GetLLMCallEndpoint{},
		&LLMCallCountsEndpoint{},

		// Settings
		&SettingsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
		&SwaggerUIEndpoint{},
	}
}
