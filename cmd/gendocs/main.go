package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra/doc"
	"github.com/yoanbernabeu/provisioner/internal/cmd"
)

func main() {
	outputDir := flag.String("out", "./docs/commands", "Output directory for the command reference")
	linkPrefix := flag.String("link-prefix", "/provisioner/commands/", "URL prefix for links between command pages")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	// Front matter so the pages render in a static site
	filePrepender := func(filename string) string {
		name := filepath.Base(filename)
		name = strings.TrimSuffix(name, filepath.Ext(name))
		title := strings.ReplaceAll(name, "_", " ")
		return `---
title: "` + title + `"
---

`
	}

	linkHandler := func(name string) string {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		return *linkPrefix + strings.ToLower(base) + "/"
	}

	rootCmd := cmd.GetRootCmd()
	rootCmd.DisableAutoGenTag = true
	if err := doc.GenMarkdownTreeCustom(rootCmd, *outputDir, filePrepender, linkHandler); err != nil {
		log.Fatalf("Failed to generate documentation: %v", err)
	}

	log.Printf("Documentation generated in %s", *outputDir)
}
