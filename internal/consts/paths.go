package consts

import (
	"os"
	"path/filepath"
)

const (
	StateDirName       = ".deca"
	ConfigFileName     = "config.yaml"
	DefaultWorkspaceID = "default"
	SkillsDirName      = "skills"
	SkillsRepoURL      = "https://github.com/deca-sh/skills.git"
	LockFileName       = "gateway.lock"
	StateDirEnv        = "DECA_STATE_DIR"
)

// StateDir returns the root directory for gateway state: $DECA_STATE_DIR if
// set (tilde-expanded), otherwise ~/.deca.
func StateDir() string {
	if v := os.Getenv(StateDirEnv); v != "" {
		return expandTilde(v)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, StateDirName)
}

func expandTilde(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

func DefaultConfigPath() string {
	return filepath.Join(StateDir(), ConfigFileName)
}

func DefaultWorkspaceDir() string {
	return filepath.Join(StateDir(), "workspaces", DefaultWorkspaceID)
}

func GlobalSkillsDir() string {
	return filepath.Join(StateDir(), SkillsDirName)
}

func GatewayLockPath() string {
	return filepath.Join(StateDir(), LockFileName)
}
