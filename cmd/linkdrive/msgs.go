package main

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort      = "Keep application data directories relocated onto a removable drive"
	MsgInitShort      = "Select a drive and migrate the managed directories onto it"
	MsgSyncShort      = "Run one reconciliation pass for all managed links"
	MsgAgentShort     = "Watch for mount events and reconcile continuously"
	MsgStatusShort    = "Show the state of each managed link and the drive"
	MsgDrivesShort    = "List connected removable drives"
	MsgScriptShort    = "Emit the unattended reconciliation script"
	MsgGenConfigShort = "Print the default settings file"
	MsgVersionShort   = "Print version information"

	// Status messages
	MsgNoDrives        = "No removable drives found."
	MsgNotInitialized  = "linkdrive is not initialized. Run 'linkdrive init <drive>' first."
	MsgDriveMounted    = "Drive %q mounted at %s\n"
	MsgDriveNotMounted = "Drive %q is not mounted\n"
	MsgLinkReconciled  = "  ✓ %s: %s\n"
	MsgLinkNoOp        = "  = %s: already correct\n"
	MsgInitDone        = "✨ Done. %d director%s now live on %q.\n"

	// Flag descriptions
	MsgFlagVerbose = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagOutput  = "Write to file instead of stdout"
	MsgFlagPlist   = "Emit a launchd property list for the script instead of the script itself"
	MsgFlagPoll    = "Use the polling watcher even if native events are available"
)

const MsgRootLong = `linkdrive keeps a fixed set of application data directories transparently
relocated onto a removable drive via directory symlinks, and keeps that
relocation self-healing across mount and unmount events.

When the drive is attached, each managed directory is a symlink onto it;
local data found in the way is migrated or quarantined, never deleted.
When the drive detaches, dangling links are replaced with local
placeholder directories so applications keep working.`
