package discord

import (
	"fmt"
	"os"
	"path/filepath"
)

const maxSocketIndex = 10

var socketEnvVars = []string{"XDG_RUNTIME_DIR", "TMPDIR", "TMP", "TEMP"}

// Sandboxed installs expose the socket below the runtime directory.
var socketSubdirs = []string{"", "app/com.discordapp.Discord", "snap.discord"}

// socketPaths lists candidate IPC socket paths in the order they are tried.
func socketPaths(getenv func(string) string) []string {
	var dirs []string
	seen := map[string]bool{}
	for _, key := range socketEnvVars {
		if dir := getenv(key); dir != "" && !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	if !seen["/tmp"] {
		dirs = append(dirs, "/tmp")
	}

	var paths []string
	for _, dir := range dirs {
		for _, sub := range socketSubdirs {
			for i := range maxSocketIndex {
				paths = append(paths, filepath.Join(dir, sub, fmt.Sprintf("discord-ipc-%d", i)))
			}
		}
	}
	return paths
}

func defaultSocketPaths() []string {
	return socketPaths(os.Getenv)
}
