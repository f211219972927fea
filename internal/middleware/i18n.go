// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", parseLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// parseLanguage handles headers like "ny-MW,ny;q=0.9,en;q=0.8".
func parseLanguage(header string) string {
	if header == "" {
		return "en"
	}

	first := strings.TrimSpace(strings.Split(strings.Split(header, ",")[0], ";")[0])
	switch strings.ToLower(first) {
	case "ny", "ny-mw", "ny_mw":
		return "ny"
	default:
		return "en"
	}
}
