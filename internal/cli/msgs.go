package cli

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "A crash-recoverable modpack manager"
	MsgVersionShort    = "Print version information"
	MsgVersionLong     = "Print detailed version information including commit hash and build date"
	MsgListShort       = "List packages in load order"
	MsgStatusShort     = "Show load order, conflicts and recovery state"
	MsgDeployShort     = "Deploy packages into the game"
	MsgUndeployShort   = "Undeploy packages and restore vanilla files"
	MsgOrderShort      = "Set the load order of a package"
	MsgImportShort     = "Import a directory as a new package"
	MsgRemoveShort     = "Remove a staged package"
	MsgExtractShort    = "Run a vanilla extraction cycle"
	MsgRecoverShort    = "Finish an interrupted extraction cycle"
	MsgHistoryShort    = "Show recent operations"
	MsgConfigShort     = "Print the effective configuration"
	MsgTopicsShort     = "Display available documentation topics"
	MsgTopicsLong      = "Display a list of all available help topics that provide additional documentation beyond command help."
	MsgCompletionShort = "Generate shell completion script"

	// Status messages
	MsgDeployed         = "deployed %s\n"
	MsgUndeployed       = "undeployed %s\n"
	MsgOrderSet         = "%s now has load order %d\n"
	MsgImported         = "imported %s (%d files)\n"
	MsgRemoved          = "removed %s\n"
	MsgUsingFallback    = "Warning: no game root given, using current directory: %s\n"
	MsgNoRecovery       = "No interrupted extraction to recover."
	MsgRecoveryPending  = "Interrupted extraction %s from %s left %d package(s) undeployed: %s"
	MsgRecoveryHint     = "Run [code]modkeeper recover[/code] to redeploy them."
	MsgRecoveryDropped  = "Recovery checkpoint discarded; the packages stay undeployed."
	MsgExtractPlan      = "Extraction cycle %s will undeploy %d package(s): %s\n"
	MsgExtractNothing   = "Extraction cycle %s: no packages are deployed\n"
	MsgConfirmExtract   = "Undeploy the packages and run the extractor?"
	MsgConfirmRecover   = "Redeploy the recorded packages?"
	MsgConfirmDiscard   = "Discard the checkpoint and leave the packages undeployed?"
	MsgAborted          = "Aborted."
	MsgCancelling       = "Cancelling, redeploying packages..."
	MsgCycleFinished    = "Extraction cycle finished: %s\n"
	MsgCycleCancelled   = "[cycle]Extraction cycle cancelled[/cycle]; the packages were redeployed."
	MsgCycleFailedHint  = "[warning]The recovery checkpoint was kept.[/warning] Run [code]modkeeper recover[/code] once the problem is fixed."
	MsgMissingDepsTitle = "Missing dependencies"
	MsgMissingDepItem   = "  %s needs %s\n"

	// Version output
	MsgVersionFormat = "modkeeper version %s\n"
	MsgCommitFormat  = "Commit: %s\n"
	MsgBuiltFormat   = "Built:  %s\n"

	// Error messages
	MsgErrIDsOrAll     = "give package ids or --all"
	MsgErrNotBoth      = "give package ids or --all, not both"
	MsgErrBadOrder     = "load order must be an integer, got %q"
	MsgErrNeedsConfirm = "confirmation needed; rerun with --yes"

	// Flag descriptions
	MsgFlagVerbose  = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagGameRoot = "Game installation root (default $MODKEEPER_GAME_ROOT, then game.root, then the current directory)"
	MsgFlagNoColor  = "Disable colored output"
	MsgFlagAll      = "Apply to every package"
	MsgFlagID       = "Package id (default: the directory name)"
	MsgFlagYes      = "Answer yes to confirmation prompts"
	MsgFlagNoLaunch = "Do not run the launch command; start the game yourself"
	MsgFlagDiscard  = "Delete the checkpoint without redeploying"
	MsgFlagLimit    = "Number of entries to show"
	MsgFlagDefaults = "Print the built-in defaults instead"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/deploy-example.txt
	msgDeployExampleRaw string
	MsgDeployExample    = strings.TrimRight(msgDeployExampleRaw, "\n")

	//go:embed msgs/status-long.txt
	msgStatusLongRaw string
	MsgStatusLong    = strings.TrimSpace(msgStatusLongRaw)

	//go:embed msgs/extract-long.txt
	msgExtractLongRaw string
	MsgExtractLong    = strings.TrimSpace(msgExtractLongRaw)

	//go:embed msgs/extract-example.txt
	msgExtractExampleRaw string
	MsgExtractExample    = strings.TrimRight(msgExtractExampleRaw, "\n")

	//go:embed msgs/recover-long.txt
	msgRecoverLongRaw string
	MsgRecoverLong    = strings.TrimSpace(msgRecoverLongRaw)
)
