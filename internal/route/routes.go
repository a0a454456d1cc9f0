package route

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"edgecounter/internal/handler"
	"edgecounter/internal/logger"
	"edgecounter/internal/service/pipeline"
	ws "edgecounter/internal/service/websocket"
)

// Deps are the services exposed over HTTP. State, Transport and Artifacts may
// be nil, in which case their endpoints are not registered.
type Deps struct {
	Hub       *ws.HubService
	State     *pipeline.SharedState
	Transport handler.TransportStatus
	Artifacts handler.ArtifactLister
	Logger    *logger.Logger
	StaticDir string
	Started   time.Time
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers the dashboard, its API endpoints and the log viewers.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(d.StaticDir))))

	// API endpoints
	mux.HandleFunc("/api/view", handler.ViewWebsocketHandler(d.Hub, d.Logger))
	if d.State != nil && d.Transport != nil {
		mux.HandleFunc("/api/status", handler.StatusHandler(d.State, d.Transport, d.Hub, d.Started))
	}
	if d.Artifacts != nil {
		mux.HandleFunc("/api/artifacts", handler.ListArtifactsHandler(d.Artifacts, d.Logger))
		mux.HandleFunc("/api/artifacts/view", handler.ViewArtifactHandler(d.Artifacts))
	}

	// Log endpoints
	for name, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(d.Logger, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(d.Logger, file))
	}

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler(d.StaticDir))

	return mux
}
