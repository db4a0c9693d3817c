// Command doctor verifies the runtime environment a groovebox deployment
// needs: the ffmpeg and yt-dlp binaries and, when DATABASE_URL is set,
// PostgreSQL connectivity and the presence of the expected tables.
//
// Run it with: go run ./tools
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/latoulicious/groovebox/pkg/database"
	"github.com/latoulicious/groovebox/pkg/database/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	fmt.Println("=== Groovebox Environment Check ===")
	fmt.Println()

	ok := checkBinaries()
	if !checkDatabase() {
		ok = false
	}

	fmt.Println()
	if !ok {
		fmt.Println("Environment check found problems, see above.")
		os.Exit(1)
	}
	fmt.Println("Environment check passed.")
}

func checkBinaries() bool {
	ffmpeg := envOr("AUDIO_FFMPEG_BINARY", "ffmpeg")
	ytdlp := envOr("AUDIO_YTDLP_BINARY", "yt-dlp")

	infos, err := NewBinaryValidator(ffmpeg, ytdlp).ValidateAll()
	for _, info := range infos {
		if info.IsAvailable {
			fmt.Printf("✅ %s %s (%s)\n", info.Name, info.Version, info.Path)
		} else {
			fmt.Printf("❌ %s: %s\n", info.Name, info.ErrorMessage)
		}
	}
	return err == nil
}

func checkDatabase() bool {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("⏭  DATABASE_URL not set, skipping database check")
		return true
	}

	db, err := database.NewGormDB(dsn, 5*time.Second)
	if err != nil {
		fmt.Printf("❌ database: connection failed: %v\n", err)
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		fmt.Printf("❌ database: %v\n", err)
		return false
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		fmt.Printf("❌ database: ping failed: %v\n", err)
		return false
	}
	fmt.Println("✅ database reachable")

	// Table counts double as a schema check; a missing table errors out
	tables := []struct {
		name  string
		model interface{}
	}{
		{"guild_settings", &models.GuildSettings{}},
		{"guild_queues", &models.GuildQueueState{}},
		{"message_refs", &models.MessageRef{}},
		{"audio_metadata", &models.AudioMetadata{}},
		{"saved_playlists", &models.SavedPlaylist{}},
		{"guild_gifs", &models.GuildGifs{}},
		{"runtime_logs", &models.RuntimeLog{}},
	}

	ok := true
	for _, t := range tables {
		var count int64
		if err := db.Model(t.model).Count(&count).Error; err != nil {
			fmt.Printf("❌ table %s: %v (run cmd/migration)\n", t.name, err)
			ok = false
			continue
		}
		fmt.Printf("   %s: %d rows\n", t.name, count)
	}
	return ok
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
