package features

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/goals-api/internal/dispatch"
	"github.com/keithlinneman/goals-api/internal/version"
)

// InfoOptions describes the plugin reported by the info group.
type InfoOptions struct {
	Name        string
	Description string
	Build       version.Info
	// Mounts is read per request; the dispatcher is built after its groups.
	Mounts func() []dispatch.MountInfo
}

type infoData struct {
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Version     string               `json:"version"`
	Commit      string               `json:"commit"`
	BuildDate   string               `json:"build_date,omitempty"`
	Mounts      []dispatch.MountInfo `json:"mounts"`
}

// Info reports name, build and the mount table on the group root.
func Info(opts InfoOptions) http.Handler {
	return dispatch.NewGroup(func(r chi.Router) {
		get(r, "/", func(w http.ResponseWriter, r *http.Request) {
			data := infoData{
				Name:        opts.Name,
				Description: opts.Description,
				Version:     opts.Build.Version,
				Commit:      opts.Build.Commit,
				BuildDate:   opts.Build.BuildDate,
				Mounts:      []dispatch.MountInfo{},
			}
			if opts.Mounts != nil {
				data.Mounts = opts.Mounts()
			}
			writeJSON(w, r, http.StatusOK, envelope{Status: "success", Data: data})
		})
	})
}
