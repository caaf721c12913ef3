/*
Package config provides type-safe extraction of bus settings from
map[string]any documents.

# Overview

Config wraps a map[string]any and provides typed accessors that return a
default when a key is missing or holds a value of the wrong type. It is the
layer between a YAML or JSON settings file and eventbus.ConfigFrom.

# Basic Usage

	cfg := config.New(map[string]any{
	    "event_inheritance":     false,
	    "background_queue_size": 512,
	    "close_timeout":         "5s",
	})

	inherit := cfg.Bool("event_inheritance", true)      // false
	queue := cfg.Int("background_queue_size", 1024)      // 512
	timeout := cfg.Duration("close_timeout", 0)          // 5s
	prefix := cfg.String("handler_prefix", "On")         // "On"

# Sections

Settings usually live in one section of a larger application file:

	eventbus:
	  async_limit: 8
	  sticky_db: /var/lib/app/sticky.db

Load reads that section from a .yaml, .yml or .json file. A file without
the section yields an empty Config, so every setting keeps its default:

	cfg, err := config.Load("app.yaml")
	if err != nil {
	    log.Fatal(err)
	}

LoadSection reads another section, and Sub extracts one from a document
that is already loaded. Unknown lists keys outside a known set, which
eventbus.ConfigFrom uses to reject misspelled settings.

# Type Coercion

Duration accepts a time.ParseDuration string ("30s", "1h30m"), a number of
seconds (int, int64, float64), or a time.Duration.

Int accepts int, int64, and float64 values with no fractional part, so both
YAML and JSON documents decode the same way.

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
