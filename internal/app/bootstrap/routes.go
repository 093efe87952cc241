// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	chatfeature "github.com/dalemusser/huddle/internal/app/features/chat"
	gifsfeature "github.com/dalemusser/huddle/internal/app/features/gifs"
	healthfeature "github.com/dalemusser/huddle/internal/app/features/health"
	loginfeature "github.com/dalemusser/huddle/internal/app/features/login"
	roomsfeature "github.com/dalemusser/huddle/internal/app/features/rooms"
	"github.com/dalemusser/huddle/internal/app/store/live"
	"github.com/dalemusser/huddle/internal/app/store/mongostore"
	"github.com/dalemusser/huddle/internal/app/system/auth"
	chatsys "github.com/dalemusser/huddle/internal/app/system/chat"
	"github.com/dalemusser/huddle/internal/app/system/giphy"
	"github.com/dalemusser/huddle/internal/app/system/membership"
	roomsys "github.com/dalemusser/huddle/internal/app/system/rooms"
	"github.com/dalemusser/huddle/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// running holds the long-lived components BuildHandler starts so
// Shutdown can stop them in order.
var running struct {
	broker   *live.Broker
	registry *roomsys.Registry
	sweeper  *workers.ExpirySweep
}

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// Huddle builds the live-query broker over MongoDB change streams,
// starts the room registry and the expired-room sweep worker, applies
// session middleware, and mounts the JSON API: sessions, rooms, chat,
// GIF search, and health.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Create the session manager using app config.
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// The backend and broker are shared by the registry and the chat
	// stream so identical live queries share one change stream.
	backend := mongostore.New(deps.HuddleMongoDatabase, logger)
	broker := live.NewBroker(backend, live.DefaultBackoff, logger)

	registry := roomsys.NewRegistry(backend, broker, logger)
	if err := registry.Start(); err != nil {
		logger.Error("room registry start failed", zap.Error(err))
		broker.Close()
		return nil, err
	}

	sweepWorker := workers.NewExpirySweep(registry, logger, appCfg.SweepInterval)
	sweepWorker.Start()

	running.broker = broker
	running.registry = registry
	running.sweeper = sweepWorker

	membershipMgr := membership.New(backend, logger)
	chatStream := chatsys.New(backend, broker, logger)
	giphyClient := giphy.New(appCfg.GiphyAPIKey, appCfg.GiphyBaseURL, appCfg.GiphyLimit, logger)

	r := chi.NewRouter()

	// Global auth middleware: loads the session identity into context.
	// This makes the current user available to all handlers via auth.CurrentUser(r).
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.HuddleMongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Sessions (trust-based sign-in)
	loginHandler := loginfeature.NewHandler(sessionMgr, logger)
	r.Mount("/", loginfeature.Routes(loginHandler))

	// Rooms: listing, live stream, creation, membership
	roomsHandler := roomsfeature.NewHandler(registry, membershipMgr, backend, logger)
	r.Mount("/rooms", roomsfeature.Routes(roomsHandler, sessionMgr))

	// Chat: room header, message send, live message stream
	chatHandler := chatfeature.NewHandler(chatStream, logger)
	r.Mount("/chat", chatfeature.Routes(chatHandler, sessionMgr))

	// GIF search for the chat picker
	gifsHandler := gifsfeature.NewHandler(giphyClient, logger)
	r.Mount("/gifs", gifsfeature.Routes(gifsHandler, sessionMgr))

	return r, nil
}
