package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"time"

	"WaveFM/cache"
	"WaveFM/config"
	"WaveFM/core/audio"
	"WaveFM/db"
	"WaveFM/logger"
	"WaveFM/repository"
	"WaveFM/storage"

	"github.com/spf13/cobra"
)

var transcodeTrackID int64

// transcodeCmd reruns the ingest pipeline for one track. Failed tiers are
// never retried automatically, so this is the operator's tool for filling
// them in after the fact (or after changing the configured bitrates).
var transcodeCmd = &cobra.Command{
	Use:   "transcode",
	Short: "Re-run transcoding for a track",
	Long: `Re-run the full ingest pipeline (probe, waveform, renditions) for one track.
New rendition files are written and the track's paths are swapped atomically;
in-flight streams keep reading the old files.`,
	Run: func(cmd *cobra.Command, args []string) {
		if transcodeTrackID <= 0 {
			log.Fatal("--track is required")
		}

		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.InfoLevel})

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.DB.Close()

		// The cache is optional here; without Redis the entry simply
		// expires by TTL instead of being invalidated.
		trackCache := cache.NewTrackCache(nil, 0)
		if err := cache.ConnectRedis(cfg); err != nil {
			log.Printf("Redis unavailable, skipping cache invalidation: %v", err)
		} else {
			defer cache.CloseRedis()
			trackCache = cache.NewTrackCache(cache.RedisClient, time.Duration(cfg.TrackCacheTTL)*time.Second)
		}

		store, err := newStorageProvider(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize storage backend: %v", err)
		}

		trackRepo := repository.NewMySQLTrackRepository()

		track, err := trackRepo.GetTrackByID(transcodeTrackID)
		if err != nil {
			log.Fatalf("Failed to look up track %d: %v", transcodeTrackID, err)
		}
		if track == nil {
			log.Fatalf("Track %d not found", transcodeTrackID)
		}
		if track.FilePath == "" {
			log.Fatalf("Track %d has no original file to transcode from", transcodeTrackID)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		// ffmpeg needs a local path; pull the original out of storage first.
		localPath, cleanup, err := fetchToTemp(ctx, store, track.FilePath)
		if err != nil {
			log.Fatalf("Failed to fetch original for track %d: %v", transcodeTrackID, err)
		}
		defer cleanup()

		prober := audio.NewProber(cfg.FFmpegPath)
		waveform := audio.NewWaveformGenerator(cfg.FFmpegPath, cfg.WaveformPoints)
		transcoder := audio.NewTranscoder(cfg)
		ingestor := audio.NewIngestor(prober, waveform, transcoder, store, trackRepo, trackCache)

		if err := ingestor.Ingest(ctx, track.ID, localPath, track.Duration); err != nil {
			log.Fatalf("Re-ingest failed for track %d: %v", transcodeTrackID, err)
		}

		fmt.Printf("Track %d re-transcoded successfully.\n", transcodeTrackID)
	},
}

// newStorageProvider mirrors the server's backend selection.
func newStorageProvider(cfg *config.Config) (storage.Provider, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewMinioProvider(cfg)
	}
	return storage.NewLocalProvider(cfg.UploadDir)
}

// fetchToTemp copies a stored object to a local temp file and returns its
// path plus a cleanup func.
func fetchToTemp(ctx context.Context, store storage.Provider, objectPath string) (string, func(), error) {
	reader, _, err := store.Open(ctx, objectPath)
	if err != nil {
		return "", nil, err
	}
	defer reader.Close()

	tmp, err := os.CreateTemp("", "wavefm_source_*"+path.Ext(objectPath))
	if err != nil {
		return "", nil, err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", nil, err
	}

	return tmpPath, func() { os.Remove(tmpPath) }, nil
}

func init() {
	transcodeCmd.Flags().Int64Var(&transcodeTrackID, "track", 0, "track id to re-transcode")
	rootCmd.AddCommand(transcodeCmd)
}
