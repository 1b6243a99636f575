package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/linkdrive/pkg/agent"
	"github.com/arthur-debert/linkdrive/pkg/config"
	"github.com/arthur-debert/linkdrive/pkg/copytree"
	"github.com/arthur-debert/linkdrive/pkg/drives"
	"github.com/arthur-debert/linkdrive/pkg/errors"
	"github.com/arthur-debert/linkdrive/pkg/filesystem"
	"github.com/arthur-debert/linkdrive/pkg/logging"
	"github.com/arthur-debert/linkdrive/pkg/reconcile"
	"github.com/arthur-debert/linkdrive/pkg/script"
	"github.com/arthur-debert/linkdrive/pkg/types"
	"github.com/arthur-debert/linkdrive/pkg/watcher"
)

// toolchain bundles the components every command wires together.
type toolchain struct {
	settings config.Settings
	state    config.State
	fs       types.FS
	dir      *drives.Directory
	rec      *reconcile.Reconciler
}

func newToolchain(events reconcile.EventFunc) (*toolchain, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	state, err := config.LoadState()
	if err != nil {
		return nil, err
	}

	fs := filesystem.NewOS()

	var tiers []copytree.Tier
	for _, t := range settings.CopyTiers {
		tiers = append(tiers, copytree.Tier(t))
	}

	opts := []reconcile.Option{}
	if events != nil {
		opts = append(opts, reconcile.WithEvents(events))
	}

	return &toolchain{
		settings: settings,
		state:    state,
		fs:       fs,
		dir:      drives.New(fs, settings.VolumesRoot),
		rec:      reconcile.New(fs, copytree.NewWithTiers(tiers), opts...),
	}, nil
}

func (tc *toolchain) requireInitialized() error {
	if tc.state.DriveID == "" {
		return errors.New(errors.ErrInvalidInput, MsgNotInitialized)
	}
	return nil
}

// reconcileAll runs one pass over every managed link, printing progress.
// It stops at the first failure: user-triggered reconciliation reports
// and stops, unlike the agent which logs and waits for the next trigger.
func (tc *toolchain) reconcileAll(ctx context.Context, out func(format string, args ...interface{})) error {
	mountPath, err := tc.dir.ResolveMountPath(tc.state.DriveID)
	if err != nil {
		return err
	}
	if mountPath == "" {
		out(MsgDriveNotMounted, tc.state.DriveID)
	} else {
		out(MsgDriveMounted, tc.state.DriveID, mountPath)
	}

	for _, link := range tc.state.Links {
		action, err := tc.rec.Reconcile(ctx, link, mountPath)
		if err != nil {
			return err
		}
		if action == types.ActionNoOp {
			out(MsgLinkNoOp, link.Name)
		} else {
			out(MsgLinkReconciled, link.Name, action)
		}
	}
	return nil
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init <drive>",
		Short: MsgInitShort,
		Long: `Init selects a removable drive by name, records it in the configuration
and runs the first reconciliation pass, migrating any existing local data
onto the drive. The drive argument is the volume's name as shown by
'linkdrive drives'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := newToolchain(nil)
			if err != nil {
				return err
			}

			driveID := args[0]
			mountPath, err := tc.dir.ResolveMountPath(driveID)
			if err != nil {
				return err
			}
			if mountPath == "" {
				return errors.Newf(errors.ErrVolumeNotMounted,
					"drive %q is not mounted; attach it and retry", driveID)
			}

			links := tc.state.Links
			if len(links) == 0 {
				links, err = config.DefaultLinks()
				if err != nil {
					return err
				}
			}

			tc.state = config.State{
				DriveID:   driveID,
				DriveName: driveID,
				DrivePath: mountPath,
				Links:     links,
			}

			for _, link := range links {
				action, err := tc.rec.Reconcile(cmd.Context(), link, mountPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), MsgLinkReconciled, link.Name, action)
			}

			tc.state.Initialized = true
			if err := config.SaveState(tc.state); err != nil {
				return err
			}

			plural := "y is"
			if len(links) != 1 {
				plural = "ies are"
			}
			fmt.Fprintf(cmd.OutOrStdout(), MsgInitDone, len(links), plural, driveID)
			return nil
		},
	}
	return cmd
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: MsgSyncShort,
		Long: `Sync runs the reconciliation decision table once for every managed link
and exits. It is idempotent: with nothing to fix it changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := newToolchain(nil)
			if err != nil {
				return err
			}
			if err := tc.requireInitialized(); err != nil {
				return err
			}
			out := func(format string, args ...interface{}) {
				fmt.Fprintf(cmd.OutOrStdout(), format, args...)
			}
			return tc.reconcileAll(cmd.Context(), out)
		},
	}
}

func newAgentCmd() *cobra.Command {
	var usePoll bool

	cmd := &cobra.Command{
		Use:   "agent",
		Short: MsgAgentShort,
		Long: `Agent watches the volumes root for mount and unmount events and
reconciles every managed link on each event, with a periodic backstop
pass. It runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := newToolchain(nil)
			if err != nil {
				return err
			}
			if err := tc.requireInitialized(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			source := pickSource(tc, usePoll)
			a := agent.New(source, tc.dir, tc.rec, tc.state.DriveID, tc.state.Links,
				agent.WithBackstopInterval(tc.settings.BackstopInterval()))
			return a.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&usePoll, "poll", false, MsgFlagPoll)
	return cmd
}

// pickSource prefers the native event watcher and falls back to polling
// when watching the volumes root fails at startup.
func pickSource(tc *toolchain, usePoll bool) watcher.Source {
	root := tc.dir.Root()
	if usePoll {
		return watcher.NewPoller(root, tc.settings.PollInterval())
	}
	return &fallbackSource{
		primary:  watcher.NewFSWatcher(root),
		fallback: watcher.NewPoller(root, tc.settings.PollInterval()),
	}
}

// fallbackSource starts the primary source and switches to the fallback
// if the primary cannot start.
type fallbackSource struct {
	primary  watcher.Source
	fallback watcher.Source
	active   watcher.Source
}

func (f *fallbackSource) Start(ctx context.Context) error {
	err := f.primary.Start(ctx)
	if err == nil {
		f.active = f.primary
		return nil
	}
	logger := logging.GetLogger("agent")
	logger.Warn().Err(err).Msg("native watcher unavailable, polling instead")
	if err := f.fallback.Start(ctx); err != nil {
		return err
	}
	f.active = f.fallback
	return nil
}

func (f *fallbackSource) Events() <-chan types.VolumeEvent { return f.active.Events() }
func (f *fallbackSource) Stop()                            { f.active.Stop() }

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: MsgStatusShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := newToolchain(nil)
			if err != nil {
				return err
			}
			if err := tc.requireInitialized(); err != nil {
				return err
			}
			return printStatus(cmd, tc)
		},
	}
}

func newDrivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: MsgDrivesShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := newToolchain(nil)
			if err != nil {
				return err
			}
			all, err := tc.dir.List()
			if err != nil {
				return err
			}
			printDrives(cmd, tc, all)
			return nil
		},
	}
}

func newScriptCmd() *cobra.Command {
	var output string
	var plist bool

	cmd := &cobra.Command{
		Use:   "script",
		Short: MsgScriptShort,
		Long: `Script renders the reconciliation decision table as a standalone POSIX
sh script suitable for an OS service supervisor, so links keep healing
when the agent is not running. With --plist it emits a launchd property
list that runs the installed script at login and on volume changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := newToolchain(nil)
			if err != nil {
				return err
			}
			if err := tc.requireInitialized(); err != nil {
				return err
			}

			var content string
			if plist {
				content, err = script.RenderPlist(script.PlistParams{
					Label:      "com.linkdrive.reconcile",
					ScriptPath: filepath.Join(filepath.Dir(config.SettingsFilePath()), "reconcile.sh"),
					WatchPath:  tc.dir.Root(),
					LogPath:    logging.LogFilePath(),
				})
			} else {
				content, err = script.Render(script.Params{
					DriveID:   tc.state.DriveID,
					MountPath: filepath.Join(tc.dir.Root(), tc.state.DriveID),
					Links:     tc.state.Links,
					LogPath:   logging.LogFilePath(),
				})
			}
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}
			return os.WriteFile(output, []byte(content), 0755)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", MsgFlagOutput)
	cmd.Flags().BoolVar(&plist, "plist", false, MsgFlagPlist)
	return cmd
}

func newGenConfigCmd() *cobra.Command {
	var effective bool

	cmd := &cobra.Command{
		Use:   "genconfig",
		Short: MsgGenConfigShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !effective {
				fmt.Fprint(cmd.OutOrStdout(), config.DefaultSettingsContent())
				return nil
			}

			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			data, err := toml.Marshal(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&effective, "effective", false,
		"Print the effective settings after file and environment overrides")
	return cmd
}
