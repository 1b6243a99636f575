package script

import (
	"github.com/beevik/etree"

	"github.com/arthur-debert/linkdrive/pkg/errors"
)

// PlistParams parameterizes the launchd-style property list that runs the
// unattended script. Emission only; registering the job with the service
// supervisor is the operator's concern.
type PlistParams struct {
	// Label is the job identifier, e.g. "com.linkdrive.reconcile".
	Label string

	// ScriptPath is the absolute path of the installed unattended script.
	ScriptPath string

	// WatchPath is the volumes root; the supervisor re-runs the script
	// whenever it changes (a volume mounting or unmounting).
	WatchPath string

	// LogPath receives the script's stdout and stderr.
	LogPath string
}

// RenderPlist emits a launchd property list wiring the unattended script
// to login and to changes under the volumes root.
func RenderPlist(p PlistParams) (string, error) {
	if p.Label == "" || p.ScriptPath == "" || p.WatchPath == "" {
		return "", errors.New(errors.ErrInvalidInput, "plist label, script path and watch path are required")
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective(`DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd"`)

	plist := doc.CreateElement("plist")
	plist.CreateAttr("version", "1.0")
	dict := plist.CreateElement("dict")

	addString := func(key, value string) {
		dict.CreateElement("key").SetText(key)
		dict.CreateElement("string").SetText(value)
	}

	addString("Label", p.Label)

	dict.CreateElement("key").SetText("ProgramArguments")
	args := dict.CreateElement("array")
	args.CreateElement("string").SetText("/bin/sh")
	args.CreateElement("string").SetText(p.ScriptPath)

	dict.CreateElement("key").SetText("RunAtLoad")
	dict.CreateElement("true")

	dict.CreateElement("key").SetText("WatchPaths")
	watch := dict.CreateElement("array")
	watch.CreateElement("string").SetText(p.WatchPath)

	if p.LogPath != "" {
		addString("StandardOutPath", p.LogPath)
		addString("StandardErrorPath", p.LogPath)
	}

	doc.Indent(4)
	out, err := doc.WriteToString()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to serialize property list")
	}
	return out, nil
}
