// cmd/tools/render-certificate/main.go
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/database"
	"registration-workers/internal/registration/certificate"
	"registration-workers/internal/registration/store"
)

// Reprints the certificate of an approved application to a local PDF.
func main() {
	configPath := flag.String("config", "", "Path to config file (defaults to configs/config.yaml)")
	applicationID := flag.String("application", "", "Application ID whose certificate to render (required)")
	out := flag.String("out", "", "Output file (defaults to <certificate number>.pdf)")
	flag.Parse()

	if *applicationID == "" {
		fmt.Println("Error: -application is required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	cert, err := store.NewPostgres(pg.DB).CertificateForApplication(ctx, *applicationID)
	if stderrors.Is(err, store.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No certificate issued for application %s\n", *applicationID)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading certificate: %v\n", err)
		os.Exit(1)
	}

	doc, err := certificate.Render(cert, certificate.VerificationLink(cfg.Archive.VerifyURL, cert.CertificateNumber))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering certificate: %v\n", err)
		os.Exit(1)
	}

	path := *out
	if path == "" {
		path = cert.CertificateNumber + ".pdf"
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", path, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", path, len(doc))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}
