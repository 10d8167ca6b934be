package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"shopassist/internal/client"
	"shopassist/internal/domain"
)

// manifest lists catalog images relative to the manifest file.
type manifest struct {
	Products []domain.CatalogItem `yaml:"products"`
}

func main() {
	addr := flag.String("server", "http://localhost:8000", "Base URL of the shopassist server")
	timeout := flag.Duration("timeout", 2*time.Minute, "Upload timeout")
	reset := flag.Bool("reset", false, "Drop the existing catalog before uploading")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Println("Usage: shopassist-ingest [--server=URL] [--reset] catalog.yaml")
		os.Exit(1)
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read manifest: %v", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		log.Fatalf("parse manifest: %v", err)
	}
	if len(m.Products) == 0 {
		log.Fatalf("manifest %s lists no products", path)
	}

	base := filepath.Dir(path)
	products := make([]client.Product, 0, len(m.Products))
	for _, p := range m.Products {
		img := p.FileName
		if !filepath.IsAbs(img) {
			img = filepath.Join(base, img)
		}
		raw, err := os.ReadFile(img)
		if err != nil {
			log.Fatalf("read image: %v", err)
		}
		products = append(products, client.Product{Path: filepath.Base(img), Data: raw, Description: p.Description, Price: p.Price})
	}

	c := client.New(*addr, *timeout)
	if *reset {
		if err := c.ResetCatalog(context.Background()); err != nil {
			log.Fatalf("reset catalog: %v", err)
		}
	}
	items, err := c.Ingest(context.Background(), products)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
	for _, it := range items {
		fmt.Printf("%s\t%s\t%.2f\t%s\n", it.ID, it.FileName, it.Price, it.Description)
	}
}
