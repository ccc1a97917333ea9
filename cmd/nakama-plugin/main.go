// Command nakama-plugin builds the PK battle engine as a Nakama Go runtime
// plugin:
//
//	go build -buildmode=plugin -o pkbattle.so ./cmd/nakama-plugin
package main

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/streamhub/pkbattle/src/infra/nakama"
)

// InitModule is the symbol Nakama looks up when loading the plugin.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	return nakama.InitModule(ctx, logger, db, nk, initializer)
}

func main() {}
