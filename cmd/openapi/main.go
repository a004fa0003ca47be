package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/theroutercompany/devdirect_website/internal/openapi"
)

func main() {
	outPath := flag.String("out", "dist/openapi.json", "Path to write the validated OpenAPI document")
	basePath := flag.String("base-path", "/devdirect-website", "Server base path advertised in the document")
	version := flag.String("version", os.Getenv("GIT_SHA"), "Document version")
	flag.Parse()

	svc := openapi.NewService(openapi.WithVersion(*version), openapi.WithBasePath(*basePath))

	doc, err := svc.Document(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "openapi build failed: %v\n", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(*outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create output directory: %v\n", err)
			os.Exit(1)
		}
	}
	if err := os.WriteFile(*outPath, doc, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write document: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "OpenAPI document written to %s\n", *outPath)
}
