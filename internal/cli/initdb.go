package cli

import (
	"fmt"

	"github.com/jason-c-dev/harmonia-memory/internal/router"
	"github.com/jason-c-dev/harmonia-memory/pkg/config"
)

// InitDB creates (or verifies) one user's database under the
// configured data directory, creating the schema on first access via
// router.Router.Get.
func InitDB(cfg *config.Config, userID string) error {
	if err := router.ValidateUserID(userID); err != nil {
		return err
	}

	rtr := router.New(cfg.DataDir)
	eng, err := rtr.Get(userID)
	if err != nil {
		return fmt.Errorf("failed to initialize database for %s: %w", userID, err)
	}
	defer rtr.Release(userID)

	fmt.Printf("database ready: %s\n", eng.Path())
	return nil
}
