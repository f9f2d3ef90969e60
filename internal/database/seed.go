package database

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"reelvault/internal/models"
	"reelvault/internal/utils"
)

// SeedData describes the initial admin account and whitelist
type SeedData struct {
	Admin     SeedAdmin            `yaml:"admin"`
	Whitelist []SeedWhitelistEntry `yaml:"whitelist"`
}

// SeedAdmin is the initial admin account. PasswordHash (see cmd/bcrypt-hash)
// takes precedence over Password.
type SeedAdmin struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// SeedWhitelistEntry is one whitelisted address in the seed file
type SeedWhitelistEntry struct {
	IP          string `yaml:"ip"`
	Description string `yaml:"description"`
}

// DefaultSeedData returns the built-in seed: admin/admin123 and the loopback addresses
func DefaultSeedData() *SeedData {
	seed := &SeedData{}
	seed.Admin.Username = "admin"
	seed.Admin.Password = "admin123"
	seed.Whitelist = []SeedWhitelistEntry{
		{IP: "127.0.0.1", Description: "Localhost IPv4"},
		{IP: "::1", Description: "Localhost IPv6"},
	}
	return seed
}

// LoadSeedFile reads seed data from a YAML file
func LoadSeedFile(path string) (*SeedData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedData
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for _, entry := range seed.Whitelist {
		if net.ParseIP(entry.IP) == nil {
			return nil, fmt.Errorf("seed file: invalid whitelist address %q", entry.IP)
		}
	}

	return &seed, nil
}

// Seed inserts the admin user and whitelist entries when their tables are empty
func Seed(db *gorm.DB, seed *SeedData, logger *zerolog.Logger) error {
	if seed == nil {
		seed = DefaultSeedData()
	}

	var userCount int64
	if err := db.Model(&models.User{}).Count(&userCount).Error; err != nil {
		return err
	}

	if userCount == 0 && seed.Admin.Username != "" {
		hash := seed.Admin.PasswordHash
		if hash == "" {
			var err error
			hash, err = utils.HashPassword(seed.Admin.Password)
			if err != nil {
				return fmt.Errorf("failed to hash admin password: %w", err)
			}
		}

		admin := &models.User{
			Username:     seed.Admin.Username,
			PasswordHash: hash,
			IsAdmin:      true,
		}
		if err := db.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to seed admin user: %w", err)
		}
		if logger != nil {
			logger.Info().Str("username", admin.Username).Msg("Seeded admin user")
		}
	}

	var whitelistCount int64
	if err := db.Model(&models.IPWhitelistEntry{}).Count(&whitelistCount).Error; err != nil {
		return err
	}
	if whitelistCount > 0 {
		return nil
	}

	for _, entry := range seed.Whitelist {
		row := &models.IPWhitelistEntry{
			IPAddress:   entry.IP,
			Description: entry.Description,
			AddedAt:     time.Now().UTC(),
			IsActive:    true,
		}
		if err := db.Create(row).Error; err != nil {
			return fmt.Errorf("failed to seed whitelist entry %s: %w", entry.IP, err)
		}
		if logger != nil {
			logger.Info().Str("ip", entry.IP).Msg("Seeded whitelist entry")
		}
	}

	return nil
}
