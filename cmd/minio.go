package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"WaveFM/config"
	"WaveFM/logger"
	"WaveFM/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO connectivity test",
	Long:  `Verify the MinIO connection with a save/open/remove round trip against the configured bucket.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Testing MinIO connection...")

		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.InfoLevel})
		fmt.Printf("MinIO config: %s, bucket: %s, SSL: %v\n", cfg.MinioEndpoint, cfg.MinioBucket, cfg.MinioUseSSL)

		provider, err := storage.NewMinioProvider(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		fmt.Println("MinIO connection successful, bucket ready!")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		objectPath := "healthcheck/" + uuid.NewString()
		payload := "wavefm minio healthcheck"

		if err := provider.Save(ctx, objectPath, strings.NewReader(payload), int64(len(payload)), "text/plain"); err != nil {
			log.Fatalf("MinIO write test failed: %v", err)
		}

		reader, size, err := provider.Open(ctx, objectPath)
		if err != nil {
			log.Fatalf("MinIO read test failed: %v", err)
		}
		reader.Close()
		if size != int64(len(payload)) {
			log.Fatalf("MinIO read test failed: expected %d bytes, got %d", len(payload), size)
		}

		if err := provider.Remove(ctx, objectPath); err != nil {
			log.Fatalf("MinIO cleanup failed: %v", err)
		}

		fmt.Println("MinIO basic operations OK!")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
}
