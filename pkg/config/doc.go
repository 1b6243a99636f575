// Package config persists linkdrive's two configuration artifacts: the
// JSON state blob (which drive backs which links, and whether initial
// migration ran) and the TOML settings file layered over built-in
// defaults and LINKDRIVE_* environment variables.
package config
