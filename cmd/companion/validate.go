package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/companion/internal/config"
	"github.com/vinayprograms/companion/internal/heartbeat"
)

// runValidate checks heartbeat config files without executing anything.
func runValidate(cmd *ValidateCmd) error {
	rt, err := newRuntime("")
	if err != nil {
		return err
	}
	defer rt.cleanup()

	path := cmd.Path
	if path == "" {
		path = config.ExpandPath(rt.cfg.Heartbeat.Dir)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		if err := validateOne(rt, path); err != nil {
			fmt.Printf("%s %s: %v\n", errorStyle.Render("✗"), path, err)
			return fmt.Errorf("validation failed")
		}
		fmt.Printf("%s %s\n", successStyle.Render("✓"), path)
		return nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}

	var failed int
	var checked int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		checked++
		full := filepath.Join(path, entry.Name())
		if err := validateOne(rt, full); err != nil {
			failed++
			fmt.Printf("%s %s: %v\n", errorStyle.Render("✗"), entry.Name(), err)
			continue
		}
		fmt.Printf("%s %s\n", successStyle.Render("✓"), entry.Name())
	}

	if checked == 0 {
		fmt.Println("no config files found")
		return nil
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d configs invalid", failed, checked)
	}
	return nil
}

func validateOne(rt *runtime, path string) error {
	cfg, err := heartbeat.LoadConfigFile(path)
	if err != nil {
		return err
	}
	return cfg.Validate(rt.guard)
}
