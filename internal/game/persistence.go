package game

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/casefile/internal/models"
	"github.com/tatianab/casefile/internal/story"
)

const (
	caseFileName  = "case.yaml"
	stateFileName = "state.yaml"
	logFileName   = "log.yaml"
)

// savedState is the part of a snapshot that is not the case or the log.
type savedState struct {
	Score    int            `yaml:"score"`
	MaxScore int            `yaml:"max_score"`
	Turn     int            `yaml:"turn"`
	Status   models.Status  `yaml:"status"`
	Current  *models.Turn   `yaml:"current,omitempty"`
	Ending   *models.Ending `yaml:"ending,omitempty"`
}

// SaveSnapshot writes snap under dir/name as three YAML files.
func SaveSnapshot(dir, name string, snap Snapshot) error {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}

	state := savedState{
		Score:    snap.Score,
		MaxScore: snap.MaxScore,
		Turn:     snap.Turn,
		Status:   snap.Status,
		Current:  snap.Current,
		Ending:   snap.Ending,
	}
	files := []struct {
		name string
		v    any
	}{
		{caseFileName, snap.Case},
		{stateFileName, state},
		{logFileName, snap.Log},
	}
	for _, f := range files {
		data, err := yaml.Marshal(f.v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(path, f.name), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// LoadSnapshot reads a save written by SaveSnapshot. The result still has to
// pass Session.Restore before it is played.
func LoadSnapshot(dir, name string) (Snapshot, error) {
	path := filepath.Join(dir, name)

	var c models.CaseFile
	if err := readYAML(filepath.Join(path, caseFileName), &c); err != nil {
		return Snapshot{}, err
	}
	var state savedState
	if err := readYAML(filepath.Join(path, stateFileName), &state); err != nil {
		return Snapshot{}, err
	}
	var log story.Log
	if err := readYAML(filepath.Join(path, logFileName), &log); err != nil {
		return Snapshot{}, err
	}

	return Snapshot{
		Case:     c,
		Score:    state.Score,
		MaxScore: state.MaxScore,
		Turn:     state.Turn,
		Status:   state.Status,
		Current:  state.Current,
		Log:      log,
		Ending:   state.Ending,
	}, nil
}

// RemoveSnapshot deletes the save dir/name. A missing save is not an error.
func RemoveSnapshot(dir, name string) error {
	return os.RemoveAll(filepath.Join(dir, name))
}

// ListSaves returns the names of the saves under dir. A missing dir has none.
func ListSaves(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var saves []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// case.yaml marks a complete save
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), caseFileName)); err == nil {
			saves = append(saves, entry.Name())
		}
	}
	return saves, nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
