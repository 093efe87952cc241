// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//   - Database connection timeouts
//
// AppConfig is where everything specific to Huddle lives: the MongoDB
// connection, session cookie settings, the Giphy integration, and the
// expired-room sweep cadence.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Max connection pool size
	MongoMinPoolSize uint64 // Min connection pool size

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: huddle-session)
	SessionDomain string // Cookie domain (blank means current host)

	// Giphy integration (GIF picker). Blank API key disables the picker.
	GiphyAPIKey  string // Giphy API key
	GiphyBaseURL string // Giphy search endpoint override (blank means the public API)
	GiphyLimit   int    // Max results per GIF search

	// Background sweep of expired rooms
	SweepInterval time.Duration // How often the sweep worker re-checks room end times
}
