package swaggerui

import (
	"net/http"

	swgui "github.com/swaggest/swgui/v5"
)

// Handler serves Swagger UI at basePath for the document at specPath.
// Assets are embedded, so no CDN is involved.
func Handler(specPath, basePath string) http.Handler {
	return swgui.New("bannerdesk API", specPath, basePath)
}
