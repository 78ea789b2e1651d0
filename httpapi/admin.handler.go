package httpapi

import (
	"net/http"

	"github.com/spooky-finn/kucoin-book-mirror/usecase"
	"go.uber.org/zap"
)

type statusResponse struct {
	Status string `json:"status"`
}

// NewAdminHandler exposes feed control on its own listener.
func NewAdminHandler(feed *usecase.FeedControlUseCase, logger *zap.Logger) http.Handler {
	logger = logger.Named("http-admin")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/websocket/stop", feedCommand(feed.Stop, "Failed to stop WebSocket: ", logger))
	mux.HandleFunc("GET /admin/websocket/start", feedCommand(feed.Start, "Failed to start WebSocket: ", logger))
	mux.HandleFunc("GET /admin/websocket/restart", feedCommand(feed.Restart, "Failed to restart WebSocket: ", logger))
	return mux
}

func feedCommand(command func() (string, error), failure string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status, err := command()
		if err != nil {
			logger.Warn("feed command failed", zap.Error(err))
			http.Error(w, failure+err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{Status: status}, logger)
	}
}
