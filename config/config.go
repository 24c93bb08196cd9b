/*
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package config loads the coordinator's startup configuration from a
// single TOML file.
package config

import "github.com/BurntSushi/toml"

// Config is the coordinator's startup configuration.
type Config struct {
	DevhostBinary string            `toml:"devhost_binary"`
	DriverDir     string            `toml:"driver_dir"`
	BusHosts      map[string]string `toml:"bus_hosts"`
}

// Default returns the configuration used when no file is given, matching
// the well-known paths and devhost names the upstream coordinator hardcodes.
func Default() Config {
	return Config{
		DevhostBinary: "/boot/bin/devhost2",
		DriverDir:     "/boot/driver",
		BusHosts: map[string]string{
			"PCI":         "devhost:pci",
			"MISC_PARENT": "devhost:misc",
			"ROOT":        "devhost:root",
		},
	}
}

// Load reads path, overlaying it on Default. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
