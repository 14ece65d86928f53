package cmd

import (
	"context"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"WaveFM/cache"
	"WaveFM/config"
	"WaveFM/core/audio"
	"WaveFM/db"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
	"WaveFM/storage"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	watchDir    string
	watchUserID int64
)

// watchExtensions are the source formats accepted from the watch folder.
var watchExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".aac":  true,
	".ogg":  true,
	".m4a":  true,
}

// watchCmd imports audio files dropped into a local directory. Unlike the
// upload API, object paths here are derived from the filename alone, which
// makes re-drops of the same file detectable as duplicates.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a folder and ingest new audio files",
	Long: `Watch a local directory and ingest every new audio file dropped into it.
Imported tracks are owned by the user given with --user. Files already imported
(same owner, same filename) are skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		if watchDir == "" {
			log.Fatal("--dir is required")
		}

		cfg := config.Load()
		logger.InitLogger(logger.Config{Level: logger.InfoLevel})

		if err := db.ConnectDB(cfg); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.DB.Close()
		if err := db.InitDB(); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}

		trackCache := cache.NewTrackCache(nil, 0)
		if err := cache.ConnectRedis(cfg); err != nil {
			log.Printf("Redis unavailable, continuing without cache: %v", err)
		} else {
			defer cache.CloseRedis()
			trackCache = cache.NewTrackCache(cache.RedisClient, time.Duration(cfg.TrackCacheTTL)*time.Second)
		}

		store, err := newStorageProvider(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize storage backend: %v", err)
		}

		trackRepo := repository.NewMySQLTrackRepository()

		prober := audio.NewProber(cfg.FFmpegPath)
		waveform := audio.NewWaveformGenerator(cfg.FFmpegPath, cfg.WaveformPoints)
		transcoder := audio.NewTranscoder(cfg)
		ingestor := audio.NewIngestor(prober, waveform, transcoder, store, trackRepo, trackCache)

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Fatalf("Failed to create watcher: %v", err)
		}
		defer watcher.Close()

		if err := watcher.Add(watchDir); err != nil {
			log.Fatalf("Failed to watch %s: %v", watchDir, err)
		}
		log.Printf("Watching %s for new audio files (owner user %d)...", watchDir, watchUserID)

		// Import anything already sitting in the folder before waiting for
		// events.
		entries, err := os.ReadDir(watchDir)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", watchDir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			importFile(filepath.Join(watchDir, entry.Name()), trackRepo, store, ingestor)
		}

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				info, err := os.Stat(event.Name)
				if err != nil || info.IsDir() {
					continue
				}
				importFile(event.Name, trackRepo, store, ingestor)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Watcher error: %v", err)
			}
		}
	},
}

// importFile ingests one file from the watch folder. All failures are logged
// and skipped so one bad file never stops the watcher.
func importFile(localPath string, trackRepo repository.TrackRepository, store storage.Provider, ingestor *audio.Ingestor) {
	name := filepath.Base(localPath)
	ext := strings.ToLower(filepath.Ext(name))
	if !watchExtensions[ext] {
		return
	}

	// Editors and copy tools fire Create before the file is fully written;
	// wait for the size to settle.
	if !waitForStableSize(localPath) {
		log.Printf("Skipping %s: file never stabilized", name)
		return
	}

	objectPath := path.Join("audio", name)

	existing, err := trackRepo.GetTrackByUserIDAndFilePath(watchUserID, objectPath)
	if err != nil {
		log.Printf("Duplicate check failed for %s: %v", name, err)
		return
	}
	if existing != nil {
		log.Printf("Skipping %s: already imported as track %d", name, existing.ID)
		return
	}

	f, err := os.Open(localPath)
	if err != nil {
		log.Printf("Failed to open %s: %v", name, err)
		return
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		log.Printf("Failed to stat %s: %v", name, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	err = store.Save(ctx, objectPath, f, info.Size(), "")
	f.Close()
	if err != nil {
		log.Printf("Failed to store %s: %v", name, err)
		return
	}

	title := strings.TrimSuffix(name, ext)
	track := &model.Track{
		UserID:        watchUserID,
		Title:         title,
		Artist:        "Unknown Artist",
		FilePath:      objectPath,
		FileSizeBytes: info.Size(),
		Visibility:    model.VisibilityPublic,
		Status:        "processing",
	}

	trackID, err := trackRepo.CreateTrack(track)
	if err != nil {
		log.Printf("Failed to create track for %s: %v", name, err)
		return
	}

	if err := ingestor.Ingest(ctx, trackID, localPath, 0); err != nil {
		log.Printf("Ingest failed for %s (track %d): %v", name, trackID, err)
		return
	}

	log.Printf("Imported %s as track %d", name, trackID)
}

// waitForStableSize polls until the file size stops changing. Returns false
// if the file disappears or keeps growing past the deadline.
func waitForStableSize(localPath string) bool {
	var lastSize int64 = -1
	deadline := time.Now().Add(2 * time.Minute)

	for time.Now().Before(deadline) {
		info, err := os.Stat(localPath)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && lastSize > 0 {
			return true
		}
		lastSize = info.Size()
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "directory to watch for new audio files")
	watchCmd.Flags().Int64Var(&watchUserID, "user", 1, "user id to own imported tracks")
	rootCmd.AddCommand(watchCmd)
}
