//go:build mage

// Package main contains Mage build targets for food-resolver developer tooling.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the CLI expects.
var projectDirs = []string{
	"data",
	".secrets",
}

// skipDirs are never walked when counting lines.
var skipDirs = map[string]bool{
	".git":      true,
	"bin":       true,
	"data":      true,
	"_examples": true,
}

// Init creates the working directories and a starter config file.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := os.WriteFile(configFile, []byte(starterConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", configFile, err)
		}
		fmt.Println("  ", configFile)
	}
	fmt.Println("Project initialized. Put API keys in .secrets/ (one file per key) or .env.")
	return nil
}

const configFile = "food-resolver.yaml"

const starterConfig = `log:
  level: info
store:
  path: data/food-resolver.db
embedding:
  model: bge-base
search:
  top_k: 3
  priority: [USDA, NUTRITIONIX, FATSECRET, LOCAL]
  usda:
    threshold: 0.85
  nutritionix:
    threshold: 0.8
  fatsecret:
    threshold: 0.8
  local:
    threshold: 0.7
grounding:
  num_results: 4
  token_budget: 3000
`

const (
	binDir  = "bin"
	binName = "food-resolver"
	cmdPkg  = "./cmd/food-resolver"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Check vets the code and runs the tests.
func Check() error {
	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return err
	}
	mg.Deps(Test)
	return nil
}

// Stats prints project metrics: Go production and test lines, per package.
func Stats() error {
	prod, test, err := countGoLines(".")
	if err != nil {
		return err
	}
	var total, totalTest int
	for _, pkg := range sortedKeys(prod, test) {
		fmt.Printf("%-28s %6d %6d\n", pkg, prod[pkg], test[pkg])
		total += prod[pkg]
		totalTest += test[pkg]
	}
	fmt.Printf("%-28s %6d %6d\n", "total", total, totalTest)
	return nil
}

// countGoLines counts non-blank lines of Go files per directory, split into
// production and test files.
func countGoLines(root string) (prod, test map[string]int, err error) {
	prod, test = map[string]int{}, map[string]int{}
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		n := 0
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) != "" {
				n++
			}
		}
		dir := filepath.Dir(path)
		if strings.HasSuffix(path, "_test.go") {
			test[dir] += n
		} else {
			prod[dir] += n
		}
		return nil
	})
	return prod, test, err
}

func sortedKeys(maps ...map[string]int) []string {
	seen := map[string]bool{}
	var keys []string
	for _, m := range maps {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}
