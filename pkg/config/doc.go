// Package config loads the classification and telemetry configuration of a
// cloner from YAML, JSON or CUE files.
//
// # Overview
//
// Every source is turned into a CUE value, unified with the others and
// checked against the built-in #Config schema before being decoded into a
// Config and checked again with validator struct tags. Errors carry file
// and line information where the source provides it.
//
// # File format
//
//	ignore:
//	  - example.com/driver.Conn
//	share:
//	  - example.com/catalog.Snapshot
//	event_convention: true
//	policies:
//	  - ./policies
//	enable_policies:
//	  - immutable-names
//	telemetry:
//	  log_level: debug
//	  trace_exporter: stdout
//
// Type names are qualified the way classify.QualifiedName prints them.
//
// # Usage
//
//	cfg, err := config.Load(ctx, "deepclone.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	registry, _, err := config.BuildRegistry(ctx, cfg, config.BuildOptions{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cloner := clone.New(clone.WithRegistry(registry))
//
// A Watcher repeats the last two steps whenever the files change:
//
//	w := config.NewWatcher([]string{"deepclone.yaml"}, opts, func(r config.Reload) {
//	    cloner.SetRegistry(r.Registry)
//	})
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package config
