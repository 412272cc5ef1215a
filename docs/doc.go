// Package docs provides generated OpenAPI documentation.
//
// Skim API
//
//	@title			Skim API
//	@version		1.0
//	@description	Book summarization API: upload books, track chapter summaries and read them at four depths.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/skim
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/skim/serve.go -o ./swagger --parseDependency --parseInternal
