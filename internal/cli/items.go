package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/roach88/archiver/internal/catalog"
)

// listTimeLayout is the timestamp format of text listings.
const listTimeLayout = "2006-01-02 15:04:05"

// ItemView is the output form of one catalog item.
type ItemView struct {
	Name      string    `json:"name" yaml:"name"`
	Version   int64     `json:"version" yaml:"version"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Status    string    `json:"status" yaml:"status"`
	Source    string    `json:"source" yaml:"source"`
	Archive   string    `json:"archive" yaml:"archive"`
	Size      int64     `json:"size" yaml:"size"`
}

func newItemView(item catalog.Item) ItemView {
	return ItemView{
		Name:      item.Name,
		Version:   item.Version,
		Timestamp: item.Timestamp.UTC(),
		Status:    string(item.Status),
		Source:    item.Source,
		Archive:   item.Archive,
		Size:      item.Size,
	}
}

func (v ItemView) row() string {
	return fmt.Sprintf("%s %d %s %s %s %s %d",
		v.Name, v.Version, v.Timestamp.Format(listTimeLayout), v.Status, v.Source, v.Archive, v.Size)
}

// ItemList is the result of list.
type ItemList []ItemView

// WriteText prints one numbered row per item.
func (l ItemList) WriteText(w io.Writer) error {
	for i, v := range l {
		if _, err := fmt.Fprintf(w, "#%03d   %s\n", i+1, v.row()); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveResult is the result of archive.
type ArchiveResult struct {
	Item ItemView `json:"item" yaml:"item"`
}

// WriteText implements TextWriter.
func (r ArchiveResult) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "archived %s version %d as %s (%d bytes)\n",
		r.Item.Name, r.Item.Version, r.Item.Archive, r.Item.Size)
	return err
}

// RestoreResult is the result of restore.
type RestoreResult struct {
	Item      ItemView `json:"item" yaml:"item"`
	Directory string   `json:"directory" yaml:"directory"`
}

// WriteText implements TextWriter.
func (r RestoreResult) WriteText(w io.Writer) error {
	var err error
	if r.Item.Status == string(catalog.StatusCorrupted) {
		_, err = fmt.Fprintf(w, "failed to restore %s version %d into %s; item marked %s\n",
			r.Item.Name, r.Item.Version, r.Directory, r.Item.Status)
	} else {
		_, err = fmt.Fprintf(w, "restored %s version %d into %s\n",
			r.Item.Name, r.Item.Version, r.Directory)
	}
	return err
}

// ConfigEntry is one key/value pair printed by config.
type ConfigEntry struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// ConfigResult is the result of config.
type ConfigResult []ConfigEntry

// WriteText prints config.<key>=<value> lines.
func (r ConfigResult) WriteText(w io.Writer) error {
	for _, e := range r {
		if _, err := fmt.Fprintf(w, "config.%s=%s\n", e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}
