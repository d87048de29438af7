package health

import (
	"encoding/json"
	"net/http"

	"ringracers-battle-alert/discovery"
)

// StatusFunc reports the active job, if any.
type StatusFunc func() (discovery.Snapshot, bool)

func Register(mux *http.ServeMux, status StatusFunc) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			http.Error(w, "no active job", http.StatusNotFound)
			return
		}
		snap, ok := status()
		if !ok {
			http.Error(w, "no active job", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
}
