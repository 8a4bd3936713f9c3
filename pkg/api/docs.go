// Package api provides the ingest webhook and the ops REST API for ChainReactor
// @title ChainReactor API
// @version 1.0
// @description Webhook ingest and operations API for the ChainReactor event reaction pipeline
// @contact.name API Support
// @contact.url https://github.com/goran-ethernal/ChainReactor
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
