package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/banshee-data/gridmapper/internal/bootstrap"
	"github.com/banshee-data/gridmapper/internal/httputil"
	"github.com/banshee-data/gridmapper/internal/mapdb"
	"github.com/banshee-data/gridmapper/internal/mapper"
	"github.com/banshee-data/gridmapper/internal/occupancy"
)

const mapFetchTimeout = 30 * time.Second

var errNoMapSource = errors.New("one of -map-url or -map-yaml is required")

// loadMapInfo resolves the native map geometry. Exactly one source must be
// given.
func loadMapInfo(ctx context.Context, url, yamlPath string, client httputil.HTTPClient) (bootstrap.MapInfo, error) {
	switch {
	case url != "" && yamlPath != "":
		return bootstrap.MapInfo{}, errors.New("-map-url and -map-yaml are mutually exclusive")
	case url != "":
		ctx, cancel := context.WithTimeout(ctx, mapFetchTimeout)
		defer cancel()
		return bootstrap.FetchHTTP(ctx, client, url)
	case yamlPath != "":
		return bootstrap.LoadYAML(yamlPath)
	default:
		return bootstrap.MapInfo{}, errNoMapSource
	}
}

// snapshotSource is the lookup restoreLatest needs from the database.
type snapshotSource interface {
	LatestGridSnapshot(width, height, scale int, resolution float64) (*mapper.GridSnapshot, error)
}

var _ snapshotSource = (*mapdb.DB)(nil)

// restoreLatest loads the newest snapshot with the grid's geometry. A
// missing or unusable snapshot leaves the grid all Unknown.
func restoreLatest(src snapshotSource, node *mapper.Node, grid *occupancy.Grid) bool {
	snap, err := src.LatestGridSnapshot(grid.Width(), grid.Height(), grid.Scale(), grid.Resolution())
	if errors.Is(err, mapdb.ErrNoSnapshot) {
		log.Printf("no previous snapshot for this geometry, starting empty")
		return false
	}
	if err != nil {
		log.Printf("failed to look up previous snapshot: %v", err)
		return false
	}
	if err := node.Restore(snap); err != nil {
		log.Printf("failed to restore snapshot %d: %v", snap.SnapshotID, err)
		return false
	}
	log.Printf("restored snapshot %d from session %s", snap.SnapshotID, snap.SessionID)
	return true
}
