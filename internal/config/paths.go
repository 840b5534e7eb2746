package config

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the voicesquad home directory.
const HomeEnv = "VOICESQUAD_HOME"

// Paths locates voicesquad's files under one home directory.
type Paths struct {
	Home   string // ~/.voicesquad
	Config string // <home>/config.yaml
	Data   string // <home>/data
}

// ResolvePaths finds the home directory, honoring VOICESQUAD_HOME.
func ResolvePaths() (Paths, error) {
	home := os.Getenv(HomeEnv)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		home = filepath.Join(userHome, ".voicesquad")
	}
	return Paths{
		Home:   home,
		Config: filepath.Join(home, "config.yaml"),
		Data:   filepath.Join(home, "data"),
	}, nil
}

// DatabasePath is the SQLite file for db; an explicit path wins over the
// data directory.
func (p Paths) DatabasePath(db DatabaseConfig) string {
	if db.Path != "" {
		return db.Path
	}
	return filepath.Join(p.Data, "agents.db")
}
