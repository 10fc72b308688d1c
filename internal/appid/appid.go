package appid

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
)

const (
	binaryName  = "tgfiles"
	vendor      = "tgfiles"
	envPrefix   = "TGFILES_"
	description = "Telegram channel file catalog and quiz parsing relay"
)

// EnvBinaryName lets packagers rebrand the binary without rebuilding.
const EnvBinaryName = "TGFILES_BINARY_NAME"

// Get returns the static application identity.
//
// The identity is compiled in rather than discovered from `.fulmen/app.yaml`;
// the relay ships as a single binary with no repository assets next to it.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	_ = ctx

	name := binaryName
	if override := strings.TrimSpace(os.Getenv(EnvBinaryName)); override != "" {
		name = override
	}

	return &appidentity.Identity{
		BinaryName:  name,
		Vendor:      vendor,
		EnvPrefix:   envPrefix,
		ConfigName:  binaryName,
		Description: description,
	}, nil
}
