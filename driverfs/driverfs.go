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

// Package driverfs implements enumerate_drivers(): walking a directory of
// TOML driver manifests at boot and registering each one.
package driverfs

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/rcornwell/devcoord/driver"
)

// BindEntry is one instruction of a manifest's bind program.
type BindEntry struct {
	Field  string `toml:"field"`
	PropID uint32 `toml:"prop_id"`
	Cond   string `toml:"cond"`
	Value  uint32 `toml:"value"`
}

// Manifest is the on-disk description of one driver.
type Manifest struct {
	Name    string      `toml:"name"`
	LibName string      `toml:"libname"`
	Binding []BindEntry `toml:"binding"`
}

// Enumerate walks dir for *.toml manifests and registers each one it can
// decode. A manifest that fails to parse is logged and skipped rather than
// aborting the whole walk: one bad driver shouldn't keep the rest of the
// system off the tree.
func Enumerate(dir string, registry *driver.Registry) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".toml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var m Manifest
		if _, err := toml.DecodeFile(path, &m); err != nil {
			slog.Error("driverfs: decode manifest", "file", path, "err", err)
			continue
		}
		drv := &driver.Driver{Name: m.Name, LibName: m.LibName, Binding: toBinding(m.Binding)}
		if err := registry.Register(drv); err != nil {
			slog.Error("driverfs: register driver", "name", m.Name, "err", err)
		}
	}
	return nil
}

func toBinding(entries []BindEntry) driver.Binding {
	b := make(driver.Binding, 0, len(entries))
	for _, e := range entries {
		instr := driver.Instr{Value: e.Value, PropID: e.PropID}
		switch e.Field {
		case "prop":
			instr.Field = driver.FieldProp
		case "autobind":
			instr.Field = driver.FieldAutobind
		default:
			instr.Field = driver.FieldProtocol
		}
		if e.Cond == "ne" {
			instr.Cond = driver.CondNE
		} else {
			instr.Cond = driver.CondEQ
		}
		b = append(b, instr)
	}
	return b
}
