// Seed program: creates package "demo" under packages/ with a few values of every kind.
// Run: go run ./cmd/seed
// Then inspect: go run ./cmd/inspect_idx packages/demo/index, or go run ./cmd/pkgctl ls packages/demo
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"

	packagemanager "PackageDB/storage_engine/package_manager"
	"PackageDB/types"
)

const (
	landingDir = "packages"
	name       = "demo"
)

func main() {
	if err := os.MkdirAll(landingDir, 0755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}

	pkg, err := packagemanager.NewPackage(name, landingDir, 1,
		packagemanager.WithLogger(logrus.WithField("cmd", "seed")))
	if err != nil {
		log.Fatalf("create package: %v", err)
	}
	defer pkg.Close()

	// start from an empty package when re-run
	if err := pkg.RemoveAllEntries(); err != nil {
		log.Fatalf("wipe: %v", err)
	}

	add := func(entry string, kind types.EntryKind, text string) *packagemanager.Entry {
		v, err := types.ParseValue(text)
		if err != nil {
			log.Fatalf("parse %q: %v", text, err)
		}
		key, err := pkg.AddEntry(entry, kind, v)
		if err != nil {
			log.Fatalf("add %s: %v", entry, err)
		}
		e, _ := pkg.Entry(key.EntryID)
		return e
	}

	fmt.Println("Creating package demo...")

	pi := add("pi", types.EntryPersistent, "SCA R 3.141592653589793")
	pi.SetReadOnly(true)
	pi.SetLoadImmediate(true)
	add("answer", types.EntryPersistent, "SCA Z 42")
	add("third", types.EntryPersistent, "SCA Q 1 3")
	add("origin", types.EntryPersistent, "VEC 3 0 0 0")
	add("rotation", types.EntryPersistent, "MAT 2 2 0 -1 1 0")
	add("", types.EntryTemporary, "VEC 2 0.5 0.25")

	if _, err := pkg.AddEntry("unset", types.EntryPersistent, nil); err != nil {
		log.Fatalf("add unset: %v", err)
	}

	if err := pkg.Save(); err != nil {
		log.Fatalf("save: %v", err)
	}

	fmt.Println("\n--- contents ---")
	if err := pkg.DisplayContents(os.Stdout); err != nil {
		log.Fatalf("display: %v", err)
	}

	fmt.Println("\nDone. Inspect:")
	fmt.Println("  - Entry index:  ", pkg.Location()+"/index")
	fmt.Println("  - Payload pages:", pkg.VarLocation())
}
