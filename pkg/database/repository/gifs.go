package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/latoulicious/groovebox/pkg/database/models"
)

// GifRepository handles database operations for guild loading GIF sets
type GifRepository struct {
	db *gorm.DB
}

func NewGifRepository(db *gorm.DB) *GifRepository {
	return &GifRepository{db: db}
}

// Get returns the GIF row for a guild, nil when none is stored
func (r *GifRepository) Get(guildID string) (*models.GuildGifs, error) {
	var gifs models.GuildGifs
	err := r.db.Where("guild_id = ?", guildID).First(&gifs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &gifs, nil
}

// AddURL appends a GIF URL to the guild set, creating the row on first add
func (r *GifRepository) AddURL(guildID, url string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var gifs models.GuildGifs
		err := tx.Where("guild_id = ?", guildID).First(&gifs).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			gifs = models.GuildGifs{
				GuildID:       guildID,
				GifURLs:       models.StringList{url},
				UseCustomGifs: true,
			}
			return tx.Create(&gifs).Error
		}
		if err != nil {
			return err
		}

		for _, existing := range gifs.GifURLs {
			if existing == url {
				return nil
			}
		}
		gifs.GifURLs = append(gifs.GifURLs, url)
		return tx.Save(&gifs).Error
	})
}

// Clear removes all custom GIFs for a guild
func (r *GifRepository) Clear(guildID string) error {
	return r.db.Model(&models.GuildGifs{}).
		Where("guild_id = ?", guildID).
		Updates(map[string]interface{}{
			"gif_urls":        models.StringList{},
			"use_custom_gifs": false,
		}).Error
}

// SetUseCustom toggles whether the guild uses its custom GIF set
func (r *GifRepository) SetUseCustom(guildID string, enabled bool) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var gifs models.GuildGifs
		err := tx.Where("guild_id = ?", guildID).First(&gifs).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			gifs = models.GuildGifs{GuildID: guildID, UseCustomGifs: enabled}
			return tx.Create(&gifs).Error
		}
		if err != nil {
			return err
		}
		gifs.UseCustomGifs = enabled
		return tx.Save(&gifs).Error
	})
}
