// Command seed loads a demo user and sample conversion history.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/bcrypt"

	"convertly/internal/server/config"
	"convertly/internal/server/database"
)

const (
	demoUsername = "demo_user"
	demoPassword = "password123"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(context.Background(), config.Load()); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(ctx); err != nil {
		return err
	}
	repo := database.NewRepository(db)

	_, err = repo.GetUserByUsername(ctx, demoUsername)
	if err == nil {
		slog.Info("demo data already present, nothing to do", "username", demoUsername)
		return nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user, err := repo.CreateUser(ctx, demoUsername, string(hash))
	if err != nil {
		return err
	}
	slog.Info("created demo user", "id", user.ID, "username", user.Username)

	for _, c := range sampleConversions(cfg.OutputDir(), user.ID) {
		if err := repo.CreateConversion(ctx, c); err != nil {
			return err
		}
		slog.Info("created sample conversion", "id", c.ID, "type", c.ConversionType, "filename", c.Filename)
	}
	return nil
}

// sampleConversions are history rows only; their output files do not exist.
func sampleConversions(outputDir string, userID int64) []*database.Conversion {
	return []*database.Conversion{
		{
			Filename:         "Merged_Document.pdf",
			OriginalFilename: "multiple_files_merged.pdf",
			Filesize:         8400000,
			ConversionType:   database.TypePDFMerge,
			OutputPath:       filepath.Join(outputDir, "Merged_Document.pdf"),
			UserID:           &userID,
			Metadata:         map[string]any{"fileCount": 3, "pageCount": 15},
		},
		{
			Filename:         "presentation_images.zip",
			OriginalFilename: "presentation.pdf",
			Filesize:         12800000,
			ConversionType:   database.TypePDFToImage,
			OutputPath:       filepath.Join(outputDir, "presentation_images.zip"),
			UserID:           &userID,
			Metadata:         map[string]any{"imageCount": 24, "format": "png"},
		},
		{
			Filename:         "website_screenshots.pdf",
			OriginalFilename: "website_screenshots.pdf",
			Filesize:         3900000,
			ConversionType:   database.TypeImageToPDF,
			OutputPath:       filepath.Join(outputDir, "website_screenshots.pdf"),
			UserID:           &userID,
			Metadata:         map[string]any{"imageCount": 8},
		},
	}
}
