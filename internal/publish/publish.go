// Package publish applies a validated calendar artifact to its output paths
// and keeps a last-known-good copy for rollback.
package publish

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	appLog "calharvest/internal/log"
	"calharvest/internal/model"
)

// Gate writes artifacts only after validation has passed upstream, and
// restores the last-known-good artifact when a later run fails.
type Gate struct {
	// ICSPath is the primary published calendar artifact.
	ICSPath string
	// JSONPath receives a plain JSON dump of the canonical event list.
	JSONPath string
	// LastGoodPath holds the most recent successfully published artifact.
	LastGoodPath string
	// Protect enables last-known-good maintenance and restoration.
	Protect bool
}

// eventDTO is the JSON dump shape for one canonical event.
type eventDTO struct {
	Title       string    `json:"title"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	AllDay      bool      `json:"all_day"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Publish writes the artifact and the JSON event dump, then refreshes the
// last-known-good copy. The JSON dump and last-known-good copy are only ever
// written on this success path.
func (g *Gate) Publish(artifact []byte, events []model.Event) error {
	if g.ICSPath == "" {
		return errors.New("publish: ICS path is empty")
	}

	if err := atomicWrite(g.ICSPath, artifact); err != nil {
		return err
	}

	dtos := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, eventDTO{
			Title:       ev.Title,
			Location:    ev.Location,
			Description: ev.Description,
			URL:         ev.URL,
			AllDay:      ev.AllDay,
			Start:       ev.Start,
			End:         ev.End,
		})
	}
	dump, err := json.MarshalIndent(dtos, "", "  ")
	if err != nil {
		return err
	}
	if err := atomicWrite(g.JSONPath, dump); err != nil {
		return err
	}

	if g.Protect && g.LastGoodPath != "" {
		if err := atomicWrite(g.LastGoodPath, artifact); err != nil {
			// The publish itself succeeded; losing the backup only weakens a
			// future rollback.
			appLog.Error("last-known-good update failed", err, "path", g.LastGoodPath)
		}
	}

	appLog.Info("artifact published", "ics", g.ICSPath, "json", g.JSONPath, "events", len(events))
	return nil
}

// Rollback reinstates the last-known-good artifact over the primary path.
// It reports whether a restoration actually happened.
func (g *Gate) Rollback() (bool, error) {
	if !g.Protect || g.LastGoodPath == "" {
		return false, nil
	}

	body, err := os.ReadFile(g.LastGoodPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Info("no last-known-good artifact to restore", "path", g.LastGoodPath)
			return false, nil
		}
		return false, err
	}

	if err := atomicWrite(g.ICSPath, body); err != nil {
		return false, err
	}
	appLog.Info("last-known-good artifact restored", "ics", g.ICSPath)
	return true, nil
}

// atomicWrite writes data via a temp file + rename in the target directory.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calharvest-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
