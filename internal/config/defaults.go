package config

// DefaultAddr is the default listen address for the WebSocket server.
const DefaultAddr = "127.0.0.1:7171"

// DefaultWorkspaceName is the workspace activated lazily when none was set.
const DefaultWorkspaceName = "default"

// DefaultMaxFileBytes caps the size of files the edit engine will load.
const DefaultMaxFileBytes int64 = 8 << 20

// DefaultBackupRetention is the number of snapshots kept per file.
const DefaultBackupRetention = 50

// DefaultEditRatePerSec limits edit operations per client.
const DefaultEditRatePerSec = 10.0
