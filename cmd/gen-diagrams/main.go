// gen-diagrams renders every program document under a directory to Mermaid
// and text diagrams next to the document.
// Run: go run ./cmd/gen-diagrams [dir]
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/taskchain/internal/design"
	"github.com/rendis/taskchain/internal/diagram"
)

func main() {
	dir := "examples"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return err
		}
		return render(path)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func render(path string) error {
	doc, err := design.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	p, err := design.Inspect(doc, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	model, err := diagram.Build(p, false)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	writeFile(base+".mmd", diagram.RenderMermaid(model))
	writeFile(base+".txt", diagram.RenderASCII(model))
	return nil
}

func writeFile(path, content string) {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
		return
	}
	fmt.Printf("Generated %s\n", path)
}
