package config

// Version is stamped at build time with -ldflags "-X .../internal/config.Version=...".
var Version = "dev"
