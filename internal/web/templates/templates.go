// Package templates holds the templ components of the web UI. Run
// `templ generate` after editing a .templ file.
package templates

import (
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/rosterbatch/internal/batch"
)

// IndexData is the view model of the upload page.
type IndexData struct {
	Strategies      []string
	DefaultStrategy string
	Pairs           []batch.PairSpec
	ChunkSize       int
	UniqueColumn    string
	GroupColumn     string
	StorageEnabled  bool
	Runs            []batch.RunRecord
}

func strategyLabel(name string, data IndexData) string {
	switch name {
	case batch.StrategyFixed:
		return "Every " + strconv.Itoa(data.ChunkSize) + " employees"
	case batch.StrategyGroup:
		return "One file per value of column " + data.GroupColumn
	default:
		return name
	}
}

func archiveURL(runID string) templ.SafeURL {
	return templ.URL("/api/runs/" + runID + "/archive")
}
