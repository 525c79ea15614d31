// Package chatcore is the public API for embedding the chat client core.
package chatcore

import (
	"github.com/tjfontaine/polyglot-chat-core/internal/runtime"
)

// Runtime owns configuration, storage, clients, the coordinator and the
// HTTP surface. See internal/runtime.Runtime.
type Runtime = runtime.Runtime

// Option is a functional option for configuring a Runtime.
type Option = runtime.Option

// New creates a Runtime with the given options.
// Example:
//
//	rt, err := chatcore.New(
//	    chatcore.WithFileConfig("config.yaml"),
//	    chatcore.WithSQLite("./data/chatcore.db"),
//	)
var New = runtime.New

var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Capability storage
	WithSQLite          = runtime.WithSQLite
	WithMemoryStorage   = runtime.WithMemoryStorage
	WithStorageProvider = runtime.WithStorageProvider

	WithLogger = runtime.WithLogger
)
