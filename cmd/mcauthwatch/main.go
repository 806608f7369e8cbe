// Command mcauthwatch watches a password file and an RBAC file for
// changes and refreshes the in-process Store/RBACStore it holds,
// logging every transition. It stands in for the dispatcher-driven
// SASL_REFRESH wire operation when no embedding server process is
// present to trigger it.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	sasl "github.com/memdsasl/mcsasl"
)

func main() {
	passwordFile := flag.String("passwords", "", "path to the isasl.json password file to watch")
	rbacFile := flag.String("rbac", "", "path to the RBAC JSON file to watch")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if *passwordFile == "" && *rbacFile == "" {
		logger.Error("no files to watch; pass -passwords and/or -rbac")
		os.Exit(2)
	}

	store := sasl.NewStore()
	rbac := sasl.NewRBACStore()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("creating watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()

	if *passwordFile != "" {
		if err := store.LoadFile(*passwordFile); err != nil {
			logger.Error("initial password load failed", "error", err, "path", *passwordFile)
			os.Exit(1)
		}
		if err := watcher.Add(*passwordFile); err != nil {
			logger.Error("watching password file", "error", err, "path", *passwordFile)
			os.Exit(1)
		}
		logger.Info("watching password file", "path", *passwordFile)
	}

	if *rbacFile != "" {
		if data, err := os.ReadFile(*rbacFile); err != nil {
			logger.Error("initial RBAC load failed", "error", err, "path", *rbacFile)
			os.Exit(1)
		} else if err := rbac.Load(data); err != nil {
			logger.Error("initial RBAC load failed", "error", err, "path", *rbacFile)
			os.Exit(1)
		}
		if err := watcher.Add(*rbacFile); err != nil {
			logger.Error("watching RBAC file", "error", err, "path", *rbacFile)
			os.Exit(1)
		}
		logger.Info("watching RBAC file", "path", *rbacFile)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			switch event.Name {
			case *passwordFile:
				if err := store.Refresh(); err != nil {
					logger.Error("password refresh failed", "error", err)
					continue
				}
				logger.Info("password database refreshed", "path", event.Name)
			case *rbacFile:
				data, err := os.ReadFile(event.Name)
				if err != nil {
					logger.Error("RBAC reload failed", "error", err)
					continue
				}
				if err := rbac.Load(data); err != nil {
					logger.Error("RBAC reload failed", "error", err)
					continue
				}
				logger.Info("RBAC database refreshed", "path", event.Name, "generation", rbac.Current().Generation())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
