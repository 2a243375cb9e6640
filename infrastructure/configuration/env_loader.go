package configuration

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"

	"social-publisher/infrastructure/logger"
)

// LoadEnvFromFile loads dotenv files in order, skipping missing ones.
// Variables already set in the environment win over file values, and the
// first file to set a key wins over later ones.
func LoadEnvFromFile(paths ...string) {
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			logger.GetLogger().WithField("path", p).Debug("Loaded env file")
			continue
		}
		if !errors.Is(err, fs.ErrNotExist) {
			logger.GetLogger().WithField("path", p).WithField("error", err).Warn("Failed to load env file")
		}
	}
}
