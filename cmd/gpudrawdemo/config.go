// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package main

import (
	"bytes"
	"os"

	"github.com/BurntSushi/toml"
)

// config is the demo driver's TOML-encoded settings, the same flat,
// tag-free struct shape noisetorch-ng's own config.go decodes into.
type config struct {
	Width  uint32
	Height uint32

	// FontAtlasPath, when non-empty, names a font.Parse-compatible blob
	// loaded into RendererOptions.FontAtlas. Left empty, glyphs sample the
	// library's blank 1x1 stand-in.
	FontAtlasPath string

	// OutputPath names the PNG the captured frame is written to.
	OutputPath string
}

func defaultConfig() config {
	return config{
		Width:      320,
		Height:     180,
		OutputPath: "frame.png",
	}
}

// readConfig loads path, writing out defaultConfig's values first if the
// file doesn't exist yet, mirroring noisetorch-ng's initializeConfigIfNot.
func readConfig(path string) (config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfig(path, defaultConfig()); err != nil {
			return config{}, err
		}
	} else if err != nil {
		return config{}, err
	}

	cfg := config{}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func writeConfig(path string, cfg config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&cfg); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
